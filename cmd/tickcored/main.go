// Command tickcored runs the deterministic timer-and-task scheduler core
// as a host process, wiring its hooks to configuration, logging, and
// Prometheus metrics.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/amken3d/tickcore/config"
	"github.com/amken3d/tickcore/core"
	"github.com/amken3d/tickcore/metrics"
)

var (
	verbose    bool
	debug      bool
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tickcored",
	Short: "Run the deterministic timer-and-task scheduler core",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler's task loop and block until shutdown",
	RunE:  runScheduler,
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Parse and validate a run config file without starting the scheduler",
	Args:  cobra.NoArgs,
	RunE:  validateConfigCmd,
}

var dictionaryCmd = &cobra.Command{
	Use:   "dictionary",
	Short: "Print the constant/command handshake dictionary a host would fetch on connect",
	Args:  cobra.NoArgs,
	RunE:  dictionaryCmdRun,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable info-level logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a run config YAML file (optional)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(dictionaryCmd)
}

// registerDictionary populates the global command registry and dictionary
// with the scheduler's handshake surface: the constants a host needs to
// interpret tick values, plus the response messages the scheduler itself
// emits. Safe to call more than once; registration is idempotent by name.
func registerDictionary(cfg *config.Config) {
	core.RegisterConstant("CLOCK_FREQ", int(core.ClockFreq))
	core.RegisterConstant("TIMER_REPEAT_COUNT", core.TimerRepeatCount)
	core.RegisterConstant("TIMER_IDLE_REPEAT_COUNT", core.TimerIdleRepeatCount)
	core.RegisterConstant("HEARTBEAT_INTERVAL_US", int(cfg.HeartbeatIntervalUS))

	core.RegisterResponse("shutdown", "clock=%u static_string_id=%hu")
	core.RegisterResponse("heartbeat", "clock=%u beats=%u")

	core.GetGlobalDictionary().BuildDictionary()
}

func dictionaryCmdRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registerDictionary(cfg)
	fmt.Println(string(core.GetGlobalDictionary().Generate()))
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := &config.Config{}
		cfg.Defaults()
		return cfg, nil
	}
	return config.Load(configPath)
}

func validateConfigCmd(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("validate-config requires --config")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(core.ClockFreq); err != nil {
		return err
	}
	fmt.Printf("config OK: logLevel=%s heartbeatIntervalUs=%d metricsAddr=%q runDuration=%s\n",
		cfg.LogLevel, cfg.HeartbeatIntervalUS, cfg.MetricsAddr, cfg.RunDuration.Duration())
	return nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(core.ClockFreq); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := setupLogger(verbose, debug, os.Stdout)

	core.SetDebugEnabled(debug)
	core.SetDebugWriter(func(s string) { logger.Debug(s) })
	registerDictionary(cfg)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metrics.WithClockFreq(core.ClockFreq)

	core.SetShutdownMessageSink(func(clock uint32, reason uint16) {
		name := reasonName(reason)
		logger.Warn("shutdown", slog.Uint64("clock", uint64(clock)), slog.String("reason", name), slog.String("run_id", runID))
		m.RecordShutdown(name)
		os.Exit(exitCodeForReason(reason))
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	pterm.DefaultHeader.WithBackgroundStyle(pterm.NewStyle(pterm.BgDarkGray)).
		WithTextStyle(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)).
		Println("tickcored")
	pterm.DefaultBox.WithTitle("Run").WithTitleTopCenter().Println(fmt.Sprintf(
		"run_id: %s\nclock_freq: %d Hz\nheartbeat: %d us\nmetrics: %s",
		runID, core.ClockFreq, cfg.HeartbeatIntervalUS, orNone(cfg.MetricsAddr),
	))

	var hostShutdownRequested atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, requesting shutdown", slog.String("run_id", runID))
		hostShutdownRequested.Store(true)
	}()

	hb := core.NewHeartbeat(cfg.HeartbeatIntervalUS)
	hb.OnBeat(func(beats uint32) {
		m.RecordHeartbeat()
		logger.Debug("heartbeat", slog.Uint64("beats", uint64(beats)))
	})

	var deadline uint32
	var hasDeadline bool
	hooks := core.Hooks{
		RunInitFuncs: func() {
			hb.Start()
			if us := runDurationTicksUS(cfg); us > 0 {
				deadline = core.ReadTime() + core.FromUS(us)
				hasDeadline = true
			}
			logger.Info("scheduler started", slog.String("run_id", runID))
		},
		RunTaskFuncs: func() {
			if hostShutdownRequested.Load() {
				core.TryShutdown(core.ReasonHostRequested)
				return
			}
			if hasDeadline && !core.IsBefore(core.ReadTime(), deadline) {
				core.TryShutdown(core.ReasonHostRequested)
				return
			}
			if hb.CheckWake() {
				m.SetDispatchBacklog(core.NextWaketime() - core.ReadTime())
			}
		},
		RunShutdownFuncs: func() {
			logger.Info("running shutdown hooks", slog.String("run_id", runID))
		},
		StatsUpdate: m.StatsUpdate,
	}

	core.RunTasks(hooks)
	return nil
}

// runDurationTicksUS clamps the configured run duration to the largest
// microsecond value FromUS can turn into ticks without the deadline
// comparison crossing the wrap-aware ambiguity boundary (half the uint32
// tick space). Longer runs are the CLI's problem to restart, not the tick
// clock's to represent.
func runDurationTicksUS(cfg *config.Config) uint32 {
	d := cfg.RunDuration.Duration()
	if d <= 0 {
		return 0
	}
	const maxUS = uint32(0x7FFFFFFF) / (core.ClockFreq / 1_000_000)
	us := d.Microseconds()
	if us <= 0 {
		return 0
	}
	if us > int64(maxUS) {
		return maxUS
	}
	return uint32(us)
}

func reasonName(reason uint16) string {
	switch reason {
	case core.ReasonNone:
		return "none"
	case core.ReasonTimerTooClose:
		return "timer_too_close"
	case core.ReasonRescheduledTimerInPast:
		return "rescheduled_timer_in_past"
	case core.ReasonSentinelCalled:
		return "sentinel_called"
	case core.ReasonShutdownClearedWhenNotShutdown:
		return "shutdown_cleared_when_not_shutdown"
	case core.ReasonHostRequested:
		return "host_requested"
	default:
		return "unknown"
	}
}

func exitCodeForReason(reason uint16) int {
	if reason == core.ReasonHostRequested {
		return 0
	}
	return 1
}

func orNone(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}
