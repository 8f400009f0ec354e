package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbench/adapter"
	"github.com/pithecene-io/docbench/cli/render"
	"github.com/pithecene-io/docbench/loadtest"
	"github.com/pithecene-io/docbench/log"
	"github.com/pithecene-io/docbench/metrics"
	"github.com/pithecene-io/docbench/report"
)

// persistTimeout bounds report persistence and notification after a run.
const persistTimeout = 30 * time.Second

// LoadTestCommand returns the loadtest command.
func LoadTestCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "threads",
			Aliases: []string{"t"},
			Usage:   "Number of concurrent upload workers",
		},
		&cli.StringFlag{
			Name:     "data-dir",
			Aliases:  []string{"d"},
			Usage:    "Directory of documents to upload",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "max-dataset-size",
			Usage: fmt.Sprintf("Maximum number of files to upload (default %d)", loadtest.DefaultMaxDatasetSize),
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Pause between STATUS polls",
			Value: loadtest.DefaultPollInterval,
		},
		&cli.DurationFlag{
			Name:  "poll-timeout",
			Usage: "Convergence deadline (0 waits forever)",
			Value: loadtest.DefaultPollTimeout,
		},
		&cli.StringFlag{
			Name:  "target",
			Usage: "Convergence target: succeeded or submitted",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run id (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "report-file",
			Usage: "Write the run report (.json, .msgpack, optional .zst; - for stdout)",
		},
	}
	flags = append(flags, storeFlags()...)
	flags = append(flags, notifyFlags()...)

	return &cli.Command{
		Name:   "loadtest",
		Usage:  "Upload a directory concurrently and measure index convergence",
		Flags:  withOutputFlags(flags...),
		Action: loadTestAction,
	}
}

// loadTestOptions holds the resolved loadtest settings.
type loadTestOptions struct {
	dataDir     string
	maxFiles    int
	cfg         loadtest.Config
	reportFile  string
	storeChoice storeChoice
}

func resolveLoadTestOptions(c *cli.Context, s *settings) (loadTestOptions, error) {
	lt := s.file.LoadTest
	opts := loadTestOptions{
		dataDir:    c.String("data-dir"),
		maxFiles:   lt.MaxDatasetSize,
		reportFile: c.String("report-file"),
		cfg: loadtest.Config{
			Threads:      lt.Threads,
			PollInterval: loadtest.DefaultPollInterval,
			PollTimeout:  loadtest.DefaultPollTimeout,
			Server:       s.wire.Addr,
			RunID:        c.String("run-id"),
		},
		storeChoice: s.storeChoice(c),
	}

	if opts.cfg.Threads == 0 {
		opts.cfg.Threads = 1
	}
	if c.IsSet("threads") {
		opts.cfg.Threads = c.Int("threads")
	}
	if c.IsSet("max-dataset-size") {
		opts.maxFiles = c.Int("max-dataset-size")
	}

	if lt.PollInterval.Duration > 0 {
		opts.cfg.PollInterval = lt.PollInterval.Duration
	}
	if c.IsSet("poll-interval") {
		opts.cfg.PollInterval = c.Duration("poll-interval")
	}
	if lt.PollTimeout != nil {
		opts.cfg.PollTimeout = lt.PollTimeout.Duration
	}
	if c.IsSet("poll-timeout") {
		opts.cfg.PollTimeout = c.Duration("poll-timeout")
	}

	target := lt.Target
	if c.IsSet("target") {
		target = c.String("target")
	}
	mode, err := loadtest.ParseTargetMode(target)
	if err != nil {
		return opts, err
	}
	opts.cfg.Target = mode

	if opts.cfg.Threads < 1 {
		return opts, fmt.Errorf("%w, got %d", loadtest.ErrInvalidThreads, opts.cfg.Threads)
	}
	if opts.cfg.PollInterval <= 0 {
		return opts, errors.New("poll interval must be positive")
	}
	if opts.cfg.PollTimeout < 0 {
		return opts, errors.New("poll timeout must not be negative")
	}
	return opts, nil
}

func loadTestAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()

	opts, err := resolveLoadTestOptions(c, s)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	files, err := loadtest.ListDataset(opts.dataDir, opts.maxFiles)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// Fail on bad persistence settings before uploading anything.
	notifier, err := s.openAdapter(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid notify config: %v", err), 1)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}
	st, err := openStore(c.Context, opts.storeChoice)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid store config: %v", err), 1)
	}

	collector := metrics.NewCollector(s.wire.Addr, opts.cfg.RunID)
	cc, err := s.newCodec(collector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := loadtest.NewOrchestrator(opts.cfg, cc, s.logger, collector)
	rep, runErr := orch.Run(ctx, files)
	if rep == nil {
		return cli.Exit(fmt.Sprintf("loadtest: %v", runErr), 1)
	}
	logger := s.logger.WithRun(log.RunContext{RunID: rep.RunID})
	if runErr != nil {
		logger.Warn("load test did not complete", map[string]any{"outcome": rep.Outcome, "error": runErr.Error()})
	}

	// Persist even when the run was cancelled.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), persistTimeout)
	defer cancel()
	var writer reportWriter
	if st != nil {
		writer = st
	}
	persist(pctx, logger, rep, opts, writer, notifier)

	if opts.reportFile != "-" {
		if err := r.Render(rep); err != nil {
			return err
		}
	}

	if code := rep.Outcome.ExitCode(); code != 0 {
		return cli.Exit(fmt.Sprintf("loadtest %s: %s", rep.Outcome, rep.Message), code)
	}
	return nil
}

// reportWriter is the store operation persist needs.
type reportWriter interface {
	Write(ctx context.Context, rep *report.RunReport) error
}

// persist writes the report file, stores the report and publishes the
// completion event. Failures are logged and never change the outcome.
func persist(ctx context.Context, logger *log.Logger, rep *report.RunReport, opts loadTestOptions, st reportWriter, notifier adapter.Adapter) {
	if opts.reportFile != "" {
		if err := report.WriteFile(rep, opts.reportFile); err != nil {
			logger.Error("failed to write report file", map[string]any{"path": opts.reportFile, "error": err.Error()})
		} else if opts.reportFile != "-" {
			logger.Sugar().Infof("report written to %s", opts.reportFile)
		}
	}

	storagePath := ""
	if st != nil {
		if err := st.Write(ctx, rep); err != nil {
			logger.Error("failed to store report", map[string]any{"location": opts.storeChoice.location(), "error": err.Error()})
		} else {
			storagePath = opts.storeChoice.location()
			logger.Info("report stored", map[string]any{"location": storagePath})
		}
	}

	if notifier != nil {
		if err := notifier.Publish(ctx, adapter.FromReport(rep, storagePath)); err != nil {
			logger.Warn("failed to publish completion event", map[string]any{"error": err.Error()})
		} else {
			logger.Info("completion event published", nil)
		}
	}
}
