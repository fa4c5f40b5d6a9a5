package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sarchlab/osvm/datarecording"
	"github.com/sarchlab/osvm/mem/vm/vmstats"
	"github.com/spf13/cobra"
)

var reportEvents int

var reportCmd = &cobra.Command{
	Use:   "report <recording.sqlite3>",
	Short: "Print the counters and the last events of a recorded run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printReport(cmd.Context(), args[0], reportEvents,
			cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().IntVar(&reportEvents, "events", 10,
		"Number of the latest events to print")
}

func printReport(
	ctx context.Context,
	path string,
	numEvents int,
	out io.Writer,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	reader := datarecording.NewReader(path)
	defer reader.Close()

	reader.MapTable(vmstats.CounterTableName, vmstats.CounterEntry{})
	reader.MapTable(vmstats.EventTableName, vmstats.EventEntry{})

	counters, _, err := reader.Query(ctx, vmstats.CounterTableName,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	for _, c := range counters {
		entry := c.(*vmstats.CounterEntry)
		fmt.Fprintf(out, "%-28s %d\n", entry.Name+":", entry.Value)
	}

	events, total, err := reader.Query(ctx, vmstats.EventTableName,
		datarecording.QueryParams{OrderBy: "Seq DESC", Limit: numEvents})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d events, latest first:\n", total)

	for _, e := range events {
		entry := e.(*vmstats.EventEntry)
		fmt.Fprintf(out, "%6d %-14s %-12s pid=%d vaddr=%#x paddr=%#x\n",
			entry.Seq, entry.Component, entry.What,
			entry.PID, entry.VAddr, entry.PAddr)
	}

	return nil
}
