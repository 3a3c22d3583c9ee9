// Package config provides the unified configuration system for slotpool
// tooling. It defines a single BenchConfig structure that the benchmark
// driver and examples use, ensuring consistent configuration across the
// repository.
//
// The configuration is organized into logical sections:
//   - Pool: capacity, slot size, default acquire timeout
//   - Workload: worker count, iterations, hold time
//   - Observability: logging and metrics endpoint settings
//
// Example usage:
//
//	cfg := config.NewBenchConfig()
//	cfg.Pool.Capacity = 64
//	cfg.Workload.Workers = 32
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"
)

// BenchConfig is the configuration for the slotbench contention driver.
type BenchConfig struct {
	// Name identifies the benchmark run
	Name string `yaml:"name" json:"name"`

	// Pool settings describe the pool under test
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Workload settings control the synthetic contention
	Workload WorkloadConfig `yaml:"workload" json:"workload"`

	// Observability settings for logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// PoolConfig describes the pool under test.
type PoolConfig struct {
	// Capacity is the fixed number of slots
	Capacity int `yaml:"capacity" json:"capacity"`
	// SlotSize is the payload size of each slot in bytes
	SlotSize int `yaml:"slot_size" json:"slot_size"`
	// DefaultTimeout bounds Acquire calls
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`
}

// WorkloadConfig controls the synthetic contention workload.
type WorkloadConfig struct {
	// Workers is the number of concurrent borrowers
	Workers int `yaml:"workers" json:"workers"`
	// Iterations is the number of acquire/work/release cycles per worker
	Iterations int `yaml:"iterations" json:"iterations"`
	// HoldTime is how long each worker holds a slot per cycle
	HoldTime time.Duration `yaml:"hold_time" json:"hold_time"`
	// AcquireTimeout overrides the pool default for workload acquires;
	// zero means use the pool default
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
}

// ObservabilityConfig controls logging and metrics for a run.
type ObservabilityConfig struct {
	// LogLevel is the zap level (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development enables console encoding and colored levels
	Development bool `yaml:"development" json:"development"`
	// MetricsAddr, when non-empty, serves prometheus metrics on this
	// address for the duration of the run (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewBenchConfig returns a BenchConfig with sensible defaults: a small pool
// under heavy contention, matching the canonical 20-workers-over-5-slots
// soak.
func NewBenchConfig() *BenchConfig {
	return &BenchConfig{
		Name: "slotbench",
		Pool: PoolConfig{
			Capacity:       5,
			SlotSize:       256,
			DefaultTimeout: 100 * time.Millisecond,
		},
		Workload: WorkloadConfig{
			Workers:    20,
			Iterations: 1000,
			HoldTime:   10 * time.Microsecond,
			// Generous so the soak measures wake latency, not timeouts
			AcquireTimeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
//
// Returns an error if validation fails, nil otherwise.
func (bc *BenchConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Pool.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be positive")
	}
	if bc.Pool.SlotSize <= 0 {
		return fmt.Errorf("pool.slot_size must be positive")
	}
	if bc.Pool.DefaultTimeout <= 0 {
		return fmt.Errorf("pool.default_timeout must be positive")
	}
	if bc.Workload.Workers <= 0 {
		return fmt.Errorf("workload.workers must be positive")
	}
	if bc.Workload.Iterations <= 0 {
		return fmt.Errorf("workload.iterations must be positive")
	}
	if bc.Workload.HoldTime < 0 {
		return fmt.Errorf("workload.hold_time cannot be negative")
	}
	if bc.Workload.AcquireTimeout < 0 {
		return fmt.Errorf("workload.acquire_timeout cannot be negative")
	}
	return nil
}

// GetWorkers returns the number of workers, defaulting to the CPU count.
func (w *WorkloadConfig) GetWorkers() int {
	if w.Workers <= 0 {
		return runtime.NumCPU()
	}
	return w.Workers
}
