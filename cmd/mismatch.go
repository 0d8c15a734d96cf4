package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/reconcile"
)

var ignoreUntil string

var mismatchCmd = &cobra.Command{
	Use:   "mismatch",
	Short: "Review and suppress tracked mismatches",
}

var mismatchIgnoreCmd = &cobra.Command{
	Use:   "ignore <mismatch-id> <kind>",
	Short: "Set a mismatch's ignore status",
	Long:  "Kinds: not_ignored, ignore_once, ignore_until_resolved, ignore_permanently, ignore_date (requires --until).",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status := model.IgnoreStatus{Kind: model.IgnoreKind(args[1])}
		if ignoreUntil != "" {
			t, err := time.Parse(time.RFC3339, ignoreUntil)
			if err != nil {
				return eris.Wrap(err, "parse --until")
			}
			status.Until = t
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := reconcile.New(st).SetIgnoreStatus(ctx, args[0], status); err != nil {
			return err
		}

		zap.L().Info("ignore status updated",
			zap.String("mismatch_id", args[0]),
			zap.String("kind", args[1]))
		return nil
	},
}

var mismatchIssueAddCmd = &cobra.Command{
	Use:   "issue-add <mismatch-id> <issue-id>",
	Short: "Attach a tracker issue to a mismatch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := reconcile.New(st).AddIssueID(ctx, args[0], args[1]); err != nil {
			return err
		}

		zap.L().Info("issue attached",
			zap.String("mismatch_id", args[0]),
			zap.String("issue_id", args[1]))
		return nil
	},
}

var mismatchIssueDelCmd = &cobra.Command{
	Use:   "issue-del <mismatch-id> <issue-id>",
	Short: "Detach a tracker issue from a mismatch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := reconcile.New(st).DeleteIssueID(ctx, args[0], args[1]); err != nil {
			return err
		}

		zap.L().Info("issue detached",
			zap.String("mismatch_id", args[0]),
			zap.String("issue_id", args[1]))
		return nil
	},
}

func init() {
	mismatchIgnoreCmd.Flags().StringVar(&ignoreUntil, "until", "", "suppression expiry for ignore_date (RFC 3339)")
	mismatchCmd.AddCommand(mismatchIgnoreCmd)
	mismatchCmd.AddCommand(mismatchIssueAddCmd)
	mismatchCmd.AddCommand(mismatchIssueDelCmd)
	rootCmd.AddCommand(mismatchCmd)
}
