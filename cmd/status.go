package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the comparison run log",
	Long:  "Displays recent comparison runs with their outcome and mismatch counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.RecentRuns(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "fetch run log")
		}

		if len(runs) == 0 {
			zap.L().Info("no runs recorded, use 'spotcheck run' to run a comparison")
			return nil
		}

		formatRunEntries(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatRunEntries writes a tabular representation of run entries to w.
func formatRunEntries(out io.Writer, runs []store.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREF TYPE\tCOMPARATOR\tSTATUS\tSTARTED\tDURATION\tOBSERVED\tMISMATCHES\tERROR")
	_, _ = fmt.Fprintln(w, "--\t--------\t----------\t------\t-------\t--------\t--------\t----------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			d := r.CompletedAt.Sub(r.StartedAt).Round(time.Second)
			dur = d.String()
		}

		errMsg := ""
		if r.Error != "" {
			errMsg = truncate(r.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.RefType,
			r.Comparator,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.ObservedCount,
			r.MismatchCount,
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
