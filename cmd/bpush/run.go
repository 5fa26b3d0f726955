package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/franksops/blobpush/config"
	"github.com/franksops/blobpush/engine"
	"github.com/franksops/blobpush/provider"
	"github.com/franksops/blobpush/report"
	"github.com/franksops/blobpush/staging"
	"github.com/franksops/blobpush/store"
	"github.com/franksops/blobpush/ui"
)

const (
	stateFile   = "state.db"
	tuiInterval = 250 * time.Millisecond
)

var (
	flagSource          string
	flagPrefix          string
	flagMaxOutstanding  int
	flagReplicas        int
	flagDeleteContainer bool
	flagTUI             bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload a batch of files into a new container",
	Long: `Create a container named <prefix>-<timestamp>, upload every file of the
source into it with at most max_outstanding transfers in flight, then
report the throughput and clean up.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&flagSource, "source", "", "file or directory to upload (source.path)")
	runCmd.Flags().StringVar(&flagPrefix, "prefix", "", "container name prefix (container.prefix)")
	runCmd.Flags().IntVar(&flagMaxOutstanding, "max-outstanding", config.DefaultMaxOutstanding,
		"maximum number of transfers in flight (transfer.max_outstanding)")
	runCmd.Flags().IntVar(&flagReplicas, "replicas", 0,
		"stage this many copies of the source file before uploading (staging.replicas)")
	runCmd.Flags().BoolVar(&flagDeleteContainer, "delete-container", false,
		"delete the container after the run (container.delete_after_run)")
	runCmd.Flags().BoolVar(&flagTUI, "tui", false, "show the interactive dashboard")
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Path = flagSource
	}
	if flags.Changed("prefix") {
		cfg.Container.Prefix = flagPrefix
	}
	if flags.Changed("max-outstanding") {
		cfg.Transfer.MaxOutstanding = flagMaxOutstanding
	}
	if flags.Changed("replicas") {
		cfg.Staging.Replicas = flagReplicas
	}
	if flags.Changed("delete-container") {
		cfg.Container.DeleteAfterRun = flagDeleteContainer
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// openLedger opens the bbolt ledger under stateDir, or an in-memory one
// when stateDir is empty.
func openLedger(stateDir string) (store.Store, error) {
	if stateDir == "" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return store.NewBoltStore(filepath.Join(stateDir, stateFile))
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		if err := setLogLevel(cfg.LogLevel); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	now := time.Now()

	pc, err := cfg.ProviderConfig()
	if err != nil {
		return err
	}
	objects, err := provider.New(ctx, pc)
	if err != nil {
		return fmt.Errorf("creating %s store: %w", cfg.Store.Backend, err)
	}

	uploadOpts, err := cfg.UploadOptions()
	if err != nil {
		return err
	}

	ledger, err := openLedger(cfg.StateDir)
	if err != nil {
		return err
	}
	defer ledger.Close()
	tracker := engine.NewItemTracker(ledger, "")

	var echo io.Writer
	if cfg.Console.Echo && !flagTUI {
		echo = os.Stdout
	}
	logSink, err := report.Open(cfg.LogFile(now), echo)
	if err != nil {
		return err
	}
	defer logSink.Close()

	sinks := engine.MultiSink{logSink}
	var tuiSink *ui.TUISink
	switch {
	case flagTUI:
		tuiSink = ui.NewTUISink(cfg.Transfer.MaxOutstanding)
		sinks = append(sinks, tuiSink)
		// The dashboard owns the terminal.
		log.SetOutput(io.Discard)
	case cfg.Console.ProgressBar:
		sinks = append(sinks, ui.NewConsoleSink(os.Stderr))
	}

	opts := []engine.Option{
		engine.WithSink(sinks),
		engine.WithTracker(tracker),
	}
	if cfg.Staging.Replicas > 0 {
		opts = append(opts, engine.WithStager(staging.New(log, staging.Config{
			Template: cfg.Source.Path,
			Replicas: cfg.Staging.Replicas,
			Dir:      cfg.Staging.Dir,
		})))
	}

	orch := engine.New(log, objects, engine.Config{
		ContainerName:   cfg.ContainerName(now),
		SourcePath:      cfg.Source.Path,
		Recursive:       cfg.Source.Recursive,
		MaxOutstanding:  cfg.Transfer.MaxOutstanding,
		Upload:          uploadOpts,
		SubmitRate:      cfg.Transfer.SubmitRate,
		DeleteContainer: cfg.Container.DeleteAfterRun,
		CleanupTimeout:  cfg.Transfer.CleanupTimeout,
	}, opts...)

	log.WithFields(logrus.Fields{
		"run_id":          tracker.RunID(),
		"backend":         cfg.Store.Backend,
		"max_outstanding": cfg.Transfer.MaxOutstanding,
	}).Info("Starting run")

	var summary *engine.Summary
	if tuiSink != nil {
		summary, err = runWithTUI(ctx, orch, tuiSink)
	} else {
		summary, err = orch.Run(ctx)
	}

	printSummary(os.Stdout, summary)
	return err
}

// runWithTUI runs the orchestrator in the background while the dashboard
// holds the terminal. Quitting the dashboard stops submission; the
// in-flight transfers still drain before it returns.
func runWithTUI(ctx context.Context, orch *engine.Orchestrator, sink *ui.TUISink) (*engine.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(ui.NewTUIModel(sink.Snapshot(), cancel), tea.WithAltScreen())

	type result struct {
		summary *engine.Summary
		err     error
	}
	done := make(chan result, 1)
	pumpCtx, stopPump := context.WithCancel(context.Background())

	go func() {
		summary, err := orch.Run(runCtx)
		stopPump()
		done <- result{summary, err}
	}()
	go sink.Pump(pumpCtx, program, tuiInterval)

	if _, err := program.Run(); err != nil {
		cancel()
		res := <-done
		return res.summary, fmt.Errorf("running dashboard: %w", err)
	}

	res := <-done
	return res.summary, res.err
}

func printSummary(w io.Writer, s *engine.Summary) {
	if s == nil {
		return
	}

	fmt.Fprintf(w, "\nRun %s\n", s.RunID)
	fmt.Fprintf(w, "  container:    %s\n", s.Container)
	fmt.Fprintf(w, "  found:        %s\n", humanize.Comma(int64(s.Found)))
	fmt.Fprintf(w, "  submitted:    %s\n", humanize.Comma(s.Submitted))
	fmt.Fprintf(w, "  succeeded:    %s\n", humanize.Comma(s.Succeeded))
	fmt.Fprintf(w, "  failed:       %s\n", humanize.Comma(s.Failed))
	fmt.Fprintf(w, "  bytes:        %s\n", humanize.IBytes(uint64(s.Bytes)))
	fmt.Fprintf(w, "  elapsed:      %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  files/sec:    %.2f\n", s.Rate)
	if s.DestinationCount >= 0 {
		fmt.Fprintf(w, "  in container: %s\n", humanize.Comma(int64(s.DestinationCount)))
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  FAILED %s\n", f.Error())
	}
	for _, err := range s.CleanupErrors {
		fmt.Fprintf(w, "  CLEANUP %s\n", err)
	}
}
