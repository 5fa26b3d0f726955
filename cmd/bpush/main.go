package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/franksops/blobpush/engine"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile  string
	logLevel string
	log      *logrus.Logger
)

// Process exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitEnumeration = 2
	exitTransfers   = 3
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	err := rootCmd.Execute()
	if err != nil {
		log.WithError(err).Error("bpush failed")
	}
	os.Exit(exitCode(err))
}

var rootCmd = &cobra.Command{
	Use:   "bpush",
	Short: "Bounded-concurrency batch uploader for object storage",
	Long: `bpush uploads every file of a directory into a freshly created
container on S3, MinIO, Azure Blob Storage or a local directory, keeping
at most a fixed number of transfers in flight, and reports throughput.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setLogLevel(logLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bpush %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.AddCommand(versionCmd)
}

func setLogLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}

	log.SetLevel(level)

	return nil
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}

// exitCode maps the outcome of a command to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var enumErr *engine.EnumerationError
	switch {
	case errors.As(err, &enumErr):
		return exitEnumeration
	case errors.Is(err, engine.ErrTransfersFailed):
		return exitTransfers
	default:
		return exitFatal
	}
}
