package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/theirongolddev/ccquota/internal/browser"
	"github.com/theirongolddev/ccquota/internal/cli"
	"github.com/theirongolddev/ccquota/internal/config"
	"github.com/theirongolddev/ccquota/internal/daemon"
	"github.com/theirongolddev/ccquota/internal/logging"
	"github.com/theirongolddev/ccquota/internal/source"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll claude.ai usage in the background and serve it over HTTP/SSE",
	Long: "Runs one browser session, polls the usage page on an interval, re-aggregates " +
		"local logs when they change, and serves /healthz, /v1/status, /v1/events and /v1/stream.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	pf := daemonCmd.PersistentFlags()
	pf.StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	pf.DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default from config)")
	pf.StringVar(&flagDaemonPIDFile, "pid-file", filepath.Join(config.DataDir(), "ccquotad.pid"), "PID file path")
	pf.StringVar(&flagDaemonLogFile, "log-file", filepath.Join(config.DataDir(), "ccquotad.log"), "Log file path for detached mode")
	pf.IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// applyDaemonDefaults fills unset daemon flags from config.
func applyDaemonDefaults(cfg config.Config) {
	if flagDaemonAddr == "" {
		flagDaemonAddr = cfg.Daemon.Addr
	}
	if flagDaemonInterval == 0 {
		flagDaemonInterval = cfg.Daemon.Interval.Duration
	}
	if flagDaemonEventsBuffer == 0 {
		flagDaemonEventsBuffer = cfg.Daemon.EventsBuf
	}
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyDaemonDefaults(cfg)

	files := daemonFiles{pidPath: flagDaemonPIDFile}
	if err := files.ensureNotRunning(); err != nil {
		return err
	}

	if flagDaemonDetach {
		return startDaemonDetached()
	}
	return runDaemonForeground(cfg, files)
}

func startDaemonDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}

	// The child's structured log rotates, so raw stderr goes to its own file.
	//nolint:gosec // daemon log path is configured by the local user
	errf, err := os.OpenFile(flagDaemonLogFile+".stderr", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = errf.Close() }()

	args := append(filterDetachArg(os.Args[1:]), "--child")
	child := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	child.Stdout = errf
	child.Stderr = errf
	child.Env = os.Environ()

	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", child.Process.Pid)
	fmt.Printf("  API: http://%s/v1/status\n", flagDaemonAddr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

func runDaemonForeground(cfg config.Config, files daemonFiles) error {
	logOpts := logging.Options{Verbose: flagVerbose || cfg.General.Verbose, File: cfg.General.LogFile}
	if flagDaemonChild {
		logOpts.File = flagDaemonLogFile
	}
	logger := logging.New(logOpts)
	defer func() { _ = logger.Sync() }()

	agg := newAggregator(cfg, logger)
	agg.Progress = nil
	dataDir, _ := source.FindDataDirectory(agg.Candidates)

	if err := files.write(daemonRuntimeState{
		PID:       os.Getpid(),
		Addr:      flagDaemonAddr,
		StartedAt: time.Now(),
		DataDir:   dataDir,
	}); err != nil {
		return err
	}
	defer files.remove()

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = history.Close() }()
	if ret := cfg.Daemon.Retention.Duration; ret > 0 {
		if n, err := history.Prune(time.Now().Add(-ret)); err != nil {
			logger.Warn("pruning history", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned history", zap.Int64("snapshots", n))
		}
	}

	ctrl := browser.NewRodController(browserOptions(cfg), browser.Hooks{
		OnLoginNeeded: func(url string) {
			logger.Warn("claude.ai login required; run `ccquota login`", zap.String("url", url))
		},
	}, logger)
	defer func() { _ = ctrl.Close() }()

	svc := daemon.New(daemon.Config{
		Interval:     flagDaemonInterval,
		Addr:         flagDaemonAddr,
		EventsBuffer: flagDaemonEventsBuffer,
		Window:       cfg.Logs.DefaultWindow.Duration,
		WatchDir:     dataDir,
	}, newFetcher(cfg, ctrl, agg, logger), agg, history, logger)

	fmt.Printf("  ccquota daemon listening on http://%s\n", flagDaemonAddr)
	fmt.Printf("  Polling claude.ai every %s\n", flagDaemonInterval)
	if dataDir != "" {
		fmt.Printf("  Watching %s\n", dataDir)
	}
	fmt.Printf("  Stop with: ccquota daemon stop --pid-file %s\n", flagDaemonPIDFile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("daemon started", zap.String("addr", flagDaemonAddr), zap.Duration("interval", flagDaemonInterval))
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("daemon stopped")
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	files := daemonFiles{pidPath: flagDaemonPIDFile}
	st, err := files.read()
	if err != nil {
		fmt.Println("  Daemon: not running (pid file not found)")
		return nil
	}
	if !processAlive(st.PID) {
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", st.PID)
		return nil
	}

	addr := st.Addr
	if addr == "" {
		addr = flagDaemonAddr
	}
	if addr == "" {
		if cfg, err := loadConfig(); err == nil {
			addr = cfg.Daemon.Addr
		}
	}

	fmt.Printf("  Daemon PID: %d\n", st.PID)
	fmt.Printf("  Address: http://%s\n", addr)
	if !st.StartedAt.IsZero() {
		fmt.Printf("  Up since: %s\n", st.StartedAt.Local().Format(time.RFC3339))
	}

	status, err := fetchDaemonStatus(addr)
	if err != nil {
		fmt.Printf("  API status: %v\n", err)
		return nil
	}

	if status.LastPollAt.IsZero() {
		fmt.Println("  Last poll: pending")
	} else {
		fmt.Printf("  Last poll: %s (%s)\n", status.LastPollAt.Local().Format(time.RFC3339), cli.FormatAge(status.LastPollAt, time.Now()))
	}
	fmt.Printf("  Poll count: %d\n", status.PollCount)
	fmt.Printf("  5-hour: %s\n", cli.FormatUtilization(status.Summary.FiveHourPct))
	fmt.Printf("  7-day: %s\n", cli.FormatUtilization(status.Summary.SevenDayPct))
	if status.Summary.ResetTime != "" {
		fmt.Printf("  Resets in: %s\n", status.Summary.ResetTime)
	}
	fmt.Printf("  Tokens: %s (%d records)\n", cli.FormatTokens(status.Summary.Tokens), status.Summary.Records)
	if status.AggregateError != "" {
		fmt.Printf("  Log scan error: %s\n", status.AggregateError)
	}
	if status.LastError != "" {
		fmt.Printf("  Last error: %s\n", status.LastError)
		if status.FailureKind != "" {
			fmt.Printf("  Hint: %s\n", status.FailureKind.Hint())
		}
	}
	return nil
}

func fetchDaemonStatus(addr string) (*daemon.Status, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unreachable (%w)", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var st daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("malformed response (%w)", err)
	}
	return &st, nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	files := daemonFiles{pidPath: flagDaemonPIDFile}
	st, err := files.read()
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	// The browser shutdown can take a few seconds.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(st.PID) {
			files.remove()
			fmt.Printf("  Stopped daemon (pid %d)\n", st.PID)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not exit in time", st.PID)
}
