package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franksops/blobpush/config"
	"github.com/franksops/blobpush/engine"
	"github.com/franksops/blobpush/store"
)

var (
	flagRunID    string
	flagStateDir string
	flagFailed   bool
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Print the item ledger of a previous run",
	Long:  `Read the per-item ledger recorded under state_dir and print the state of every item of one run.`,
	RunE:  listItems,
}

func init() {
	rootCmd.AddCommand(itemsCmd)
	itemsCmd.Flags().StringVar(&flagRunID, "run-id", "", "run ID printed at the end of the run (required)")
	itemsCmd.Flags().StringVar(&flagStateDir, "state-dir", "", "directory holding the ledger (state_dir)")
	itemsCmd.Flags().BoolVar(&flagFailed, "failed", false, "only print failed items")
	_ = itemsCmd.MarkFlagRequired("run-id")
}

func listItems(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	stateDir := cfg.StateDir
	if cmd.Flags().Changed("state-dir") {
		stateDir = flagStateDir
	}
	if stateDir == "" {
		return errors.New("state_dir is not set; no ledger to read")
	}

	path := filepath.Join(stateDir, stateFile)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}

	ledger, err := store.NewBoltStore(path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := engine.NewItemTracker(ledger, flagRunID).Items()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no items recorded for run %s", flagRunID)
	}

	printItems(cmd.OutOrStdout(), records, flagFailed)
	return nil
}

func printItems(w io.Writer, records []*store.ItemRecord, failedOnly bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tSIZE\tCONTAINER\tERROR")

	counts := make(map[store.ItemState]int)
	for _, r := range records {
		counts[r.State]++
		if failedOnly && r.State != store.StateFailed {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.State, humanize.IBytes(uint64(r.Size)), r.Container, r.Error)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d item(s): %d completed, %d failed, %d in progress, %d pending\n",
		len(records), counts[store.StateCompleted], counts[store.StateFailed],
		counts[store.StateInProgress], counts[store.StatePending])
}
