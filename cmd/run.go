package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

var (
	runRefType string
	runFrom    string
	runTo      string
	runAll     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run comparisons and reconcile their reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !runAll && runRefType == "" {
			return eris.New("either --ref-type or --all is required")
		}

		window, err := parseWindow(runFrom, runTo)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		svc, err := initRunService(st)
		if err != nil {
			return err
		}

		if runAll {
			return svc.RunAll(ctx, window)
		}

		rt, err := model.ParseReferenceType(runRefType)
		if err != nil {
			return err
		}
		return svc.HandleReferenceArrived(ctx, rt, window)
	},
}

// parseWindow builds the reference window from the --from/--to flags.
// Both empty means all time.
func parseWindow(from, to string) (model.TimeRange, error) {
	if from == "" && to == "" {
		return model.AllTime(), nil
	}

	window := model.AllTime()
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return model.TimeRange{}, eris.Wrap(err, "parse --from")
		}
		window.Start = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return model.TimeRange{}, eris.Wrap(err, "parse --to")
		}
		window.End = t
	}
	if !window.End.After(window.Start) {
		return model.TimeRange{}, eris.New("--to must be after --from")
	}
	return window, nil
}

func init() {
	runCmd.Flags().StringVar(&runRefType, "ref-type", "", "reference type to run (e.g. daybreak_bill)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "window start (RFC 3339)")
	runCmd.Flags().StringVar(&runTo, "to", "", "window end (RFC 3339)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every registered comparator")
	rootCmd.AddCommand(runCmd)
}
