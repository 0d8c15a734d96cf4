package bill

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/db"
	"github.com/legis-watch/spotcheck-cli/internal/model"
)

const (
	obsTable = "spotcheck.obs_bill"
	refTable = "spotcheck.ref_bill"
)

// LoadObserved upserts observed bill rows into the observed mirror table.
// Re-loading a bill refreshes its fields in place.
func LoadObserved(ctx context.Context, pool db.Pool, bills []Data) (int64, error) {
	rows := make([][]any, 0, len(bills))
	now := time.Now().UTC()
	for _, b := range bills {
		rows = append(rows, []any{
			b.PrintNo, b.Session, b.Title, b.Sponsor, b.CosponsorString(),
			nullDate(b.ActionDate), now,
		})
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        obsTable,
		Columns:      []string{"print_no", "session", "title", "sponsor", "cosponsors", "action_date", "updated_at"},
		ConflictKeys: []string{"print_no", "session"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "bill: load observed mirror")
	}
	zap.L().Info("observed bill mirror loaded", zap.Int64("rows", n))
	return n, nil
}

// LoadReference upserts one reference snapshot into the reference mirror
// table, keyed by reference type and snapshot time.
func LoadReference(ctx context.Context, pool db.Pool, refID model.ReferenceID, bills []Data) (int64, error) {
	if !refID.RefType.Valid() {
		return 0, eris.Errorf("bill: unknown reference type %q", refID.RefType)
	}
	rows := make([][]any, 0, len(bills))
	now := time.Now().UTC()
	for _, b := range bills {
		rows = append(rows, []any{
			string(refID.RefType), refID.RefDateTime.UTC(),
			b.PrintNo, b.Session, b.Title, b.Sponsor, b.CosponsorString(),
			nullDate(b.ActionDate), now,
		})
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table: refTable,
		Columns: []string{
			"ref_type", "ref_date_time", "print_no", "session",
			"title", "sponsor", "cosponsors", "action_date", "loaded_at",
		},
		ConflictKeys: []string{"ref_type", "ref_date_time", "print_no", "session"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "bill: load reference snapshot %s", refID.RefType)
	}
	zap.L().Info("reference bill snapshot loaded",
		zap.String("ref_type", string(refID.RefType)),
		zap.Time("ref_time", refID.RefDateTime),
		zap.Int64("rows", n))
	return n, nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
