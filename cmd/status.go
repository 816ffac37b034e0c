package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"packt-downloader/model"
)

type statusArgs struct {
	state  string
	failed bool
}

var sArgs statusArgs

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run and the state of every download",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&sArgs.state, "state", "", "state database (default state.db)")
	statusCmd.Flags().BoolVar(&sArgs.failed, "failed", false, "only show failed downloads")
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.StatePath
	if sArgs.state != "" {
		path = sArgs.state
	}

	ctx := cmd.Context()
	status, err := openStatus(ctx, path)
	if err != nil {
		return err
	}
	defer status.Close()

	out := cmd.OutOrStdout()
	run, ok, err := status.LastRun(ctx)
	if err != nil {
		return err
	}
	if ok {
		state := "finished"
		switch {
		case run.Cancelled:
			state = "interrupted"
		case run.FinishedAt.IsZero():
			state = "did not finish"
		}
		fmt.Fprintf(out, "last run %s at %s, %s: %d downloaded, %d already present, %d failed\n",
			run.ID, run.StartedAt.Format(time.DateTime), state, run.Complete, run.Skipped, run.Failed)
	} else {
		fmt.Fprintln(out, "no runs recorded")
	}

	var filter []model.TargetStatus
	if sArgs.failed {
		filter = append(filter, model.TargetFailed)
	}
	records, err := status.List(ctx, filter...)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BOOK\tFORMAT\tSTATUS\tATTEMPTS\tUPDATED\tERROR")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ProductName, rec.Format, rec.Status, rec.Attempts, rec.UpdatedAt.Format(time.DateTime), rec.LastError)
	}
	return w.Flush()
}
