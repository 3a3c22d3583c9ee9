// Command slotbench drives a configurable contention workload against a slot
// pool and reports throughput, wait latency, and process resource usage.
package main

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/config"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/poolerrors"
	"github.com/ajitpratap0/slotpool/pkg/slotpool"
)

var version = "0.1.0"

// runReport is the end-of-run summary emitted as JSON.
type runReport struct {
	Name             string  `json:"name"`
	Capacity         int     `json:"capacity"`
	SlotSize         int     `json:"slot_size"`
	Workers          int     `json:"workers"`
	Iterations       int     `json:"iterations"`
	Cycles           int64   `json:"cycles"`
	Timeouts         int64   `json:"timeouts"`
	UnexpectedErrors int64   `json:"unexpected_errors"`
	DurationSeconds  float64 `json:"duration_seconds"`
	CyclesPerSecond  float64 `json:"cycles_per_second"`
	AvgWaitMicros    float64 `json:"avg_wait_micros"`
	FinalAvailable   int     `json:"final_available"`
	RSSMegabytes     float64 `json:"rss_megabytes,omitempty"`
	CPUPercent       float64 `json:"cpu_percent,omitempty"`
}

func main() {
	root := &cobra.Command{
		Use:   "slotbench",
		Short: "slotbench - contention benchmark for the slot pool",
		Long: `slotbench exercises a fixed-capacity slot pool with a configurable number
of concurrent workers and reports throughput, acquire wait latency, and
process resource usage. It doubles as a liveness soak: any unexpected
(non-timeout) error fails the run.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slotbench v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newRunCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var configFile string
	var reportFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the contention workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configFile)
			if err != nil {
				return err
			}
			return runBench(cfg, reportFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file (flags override it)")
	cmd.Flags().StringVarP(&reportFile, "report", "r", "", "write the JSON report to this file instead of stdout")
	cmd.Flags().Int("capacity", 5, "pool capacity in slots")
	cmd.Flags().Int("slot-size", 256, "slot payload size in bytes")
	cmd.Flags().Duration("default-timeout", 100*time.Millisecond, "pool default acquire timeout")
	cmd.Flags().Int("workers", 20, "number of concurrent workers")
	cmd.Flags().Int("iterations", 1000, "acquire/work/release cycles per worker")
	cmd.Flags().Duration("hold", 10*time.Microsecond, "how long each worker holds a slot")
	cmd.Flags().Duration("acquire-timeout", 5*time.Second, "per-acquire timeout for workers")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	bindings := map[string]string{
		"pool.capacity":              "capacity",
		"pool.slot_size":             "slot-size",
		"pool.default_timeout":       "default-timeout",
		"workload.workers":           "workers",
		"workload.iterations":        "iterations",
		"workload.hold_time":         "hold",
		"workload.acquire_timeout":   "acquire-timeout",
		"observability.metrics_addr": "metrics-addr",
		"observability.log_level":    "log-level",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("SLOTBENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return cmd
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then any flag or SLOTBENCH_* environment override bound via viper.
func loadConfig(cmd *cobra.Command, configFile string) (*config.BenchConfig, error) {
	cfg := config.NewBenchConfig()

	if configFile != "" {
		loaded, err := config.LoadBenchConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags beat the file only when explicitly set.
	overrideInt := func(key, flag string, dst *int) {
		if cmd.Flags().Changed(flag) || configFile == "" {
			*dst = viper.GetInt(key)
		}
	}
	overrideDur := func(key, flag string, dst *time.Duration) {
		if cmd.Flags().Changed(flag) || configFile == "" {
			*dst = viper.GetDuration(key)
		}
	}
	overrideStr := func(key, flag string, dst *string) {
		if cmd.Flags().Changed(flag) || configFile == "" {
			*dst = viper.GetString(key)
		}
	}

	overrideInt("pool.capacity", "capacity", &cfg.Pool.Capacity)
	overrideInt("pool.slot_size", "slot-size", &cfg.Pool.SlotSize)
	overrideDur("pool.default_timeout", "default-timeout", &cfg.Pool.DefaultTimeout)
	overrideInt("workload.workers", "workers", &cfg.Workload.Workers)
	overrideInt("workload.iterations", "iterations", &cfg.Workload.Iterations)
	overrideDur("workload.hold_time", "hold", &cfg.Workload.HoldTime)
	overrideDur("workload.acquire_timeout", "acquire-timeout", &cfg.Workload.AcquireTimeout)
	overrideStr("observability.metrics_addr", "metrics-addr", &cfg.Observability.MetricsAddr)
	overrideStr("observability.log_level", "log-level", &cfg.Observability.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBench(cfg *config.BenchConfig, reportFile string) error {
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    "json",
	}); err != nil {
		return err
	}
	log := logger.WithPool(cfg.Name)

	pool, err := slotpool.New(cfg.Pool.Capacity, cfg.Pool.DefaultTimeout,
		slotpool.WithName(cfg.Name),
		slotpool.WithSlotSize(cfg.Pool.SlotSize),
		slotpool.WithLogger(log),
		slotpool.WithMetrics(metrics.NewCollector(cfg.Name)),
	)
	if err != nil {
		return err
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving prometheus metrics", zap.String("addr", addr))
	}

	workers := cfg.Workload.GetWorkers()
	log.Info("starting workload",
		zap.Int("capacity", cfg.Pool.Capacity),
		zap.Int("workers", workers),
		zap.Int("iterations", cfg.Workload.Iterations),
		zap.Duration("hold_time", cfg.Workload.HoldTime),
	)

	var cycles, timeouts, unexpected atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < cfg.Workload.Iterations; i++ {
				slot, err := pool.AcquireTimeout(cfg.Workload.AcquireTimeout)
				if err != nil {
					if poolerrors.IsTimeout(err) {
						timeouts.Add(1)
					} else {
						unexpected.Add(1)
						log.Error("acquire failed", zap.Int("worker", worker), zap.Error(err))
					}
					continue
				}

				// Simulated work: stamp the payload and hold the slot.
				slot.Bytes()[0] = byte(worker)
				if cfg.Workload.HoldTime > 0 {
					time.Sleep(cfg.Workload.HoldTime)
				}

				if err := pool.Release(slot); err != nil {
					unexpected.Add(1)
					log.Error("release failed", zap.Int("worker", worker), zap.Error(err))
					continue
				}
				cycles.Add(1)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	stats := pool.Stats()
	report := runReport{
		Name:             cfg.Name,
		Capacity:         pool.Capacity(),
		SlotSize:         pool.SlotSize(),
		Workers:          workers,
		Iterations:       cfg.Workload.Iterations,
		Cycles:           cycles.Load(),
		Timeouts:         timeouts.Load(),
		UnexpectedErrors: unexpected.Load(),
		DurationSeconds:  elapsed.Seconds(),
		CyclesPerSecond:  float64(cycles.Load()) / elapsed.Seconds(),
		FinalAvailable:   pool.Available(),
	}
	if stats.Acquires > 0 {
		report.AvgWaitMicros = float64(stats.TotalWait.Microseconds()) / float64(stats.Acquires)
	}
	sampleProcess(&report, log)

	if err := writeReport(&report, reportFile); err != nil {
		return err
	}

	log.Info("workload finished",
		zap.Int64("cycles", report.Cycles),
		zap.Int64("timeouts", report.Timeouts),
		zap.Float64("cycles_per_second", report.CyclesPerSecond),
	)

	if report.FinalAvailable != pool.Capacity() {
		return fmt.Errorf("pool leaked slots: %d available of %d", report.FinalAvailable, pool.Capacity())
	}
	if n := report.UnexpectedErrors; n > 0 {
		return fmt.Errorf("workload saw %d unexpected errors", n)
	}
	return pool.Close()
}

// sampleProcess fills in RSS and CPU usage for the current process. Failures
// are logged and left out of the report rather than failing the run.
func sampleProcess(report *runReport, log *zap.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("process stats unavailable", zap.Error(err))
		return
	}
	if mi, err := proc.MemoryInfo(); err == nil {
		report.RSSMegabytes = float64(mi.RSS) / (1024 * 1024)
	}
	if pct, err := proc.CPUPercent(); err == nil {
		report.CPUPercent = pct
	}
}

func writeReport(report *runReport, path string) error {
	data, err := gojson.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
