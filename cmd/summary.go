package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/legis-watch/spotcheck-cli/internal/store"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show aggregate mismatch counts",
}

var summaryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count mismatches by lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.StatusSummary(ctx, store.MismatchQuery{})
		if err != nil {
			return eris.Wrap(err, "status summary")
		}

		rows := make(map[string]int, len(s.Counts))
		for k, v := range s.Counts {
			rows[string(k)] = v
		}
		formatSummary(os.Stdout, "STATE", rows, s.Total)
		return nil
	},
}

var summaryTypeCmd = &cobra.Command{
	Use:   "type",
	Short: "Count mismatches by mismatch type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.TypeSummary(ctx, store.MismatchQuery{})
		if err != nil {
			return eris.Wrap(err, "type summary")
		}

		rows := make(map[string]int, len(s.Counts))
		for k, v := range s.Counts {
			rows[string(k)] = v
		}
		formatSummary(os.Stdout, "TYPE", rows, s.Total)
		return nil
	},
}

var summaryContentTypeCmd = &cobra.Command{
	Use:   "contenttype",
	Short: "Count mismatches by content category and state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.ContentTypeSummary(ctx, store.MismatchQuery{})
		if err != nil {
			return eris.Wrap(err, "content type summary")
		}

		rows := make(map[string]int)
		for ct, states := range s.Counts {
			for state, n := range states {
				rows[fmt.Sprintf("%s/%s", ct, state)] = n
			}
		}
		formatSummary(os.Stdout, "CONTENT/STATE", rows, s.Total)
		return nil
	},
}

// formatSummary writes label/count rows sorted by label, then a total line.
func formatSummary(out io.Writer, header string, rows map[string]int, total int) {
	labels := make([]string, 0, len(rows))
	for l := range rows {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\tCOUNT\n", header)
	for _, l := range labels {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", l, rows[l])
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", total)
	_ = w.Flush()
}

func init() {
	summaryCmd.AddCommand(summaryStatusCmd)
	summaryCmd.AddCommand(summaryTypeCmd)
	summaryCmd.AddCommand(summaryContentTypeCmd)
	rootCmd.AddCommand(summaryCmd)
}
