package bill

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/db"
	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// Comparator checks observed bills against the newest reference snapshot of
// its reference type. One instance exists per bill-bearing reference type.
type Comparator struct {
	pool    db.Pool
	refType model.ReferenceType
	tol     Tolerances
	now     func() time.Time
	log     *zap.Logger
}

// New builds a bill comparator for a bill-bearing reference type.
func New(pool db.Pool, refType model.ReferenceType, tol Tolerances) (*Comparator, error) {
	if refType.ContentType() != model.ContentBill {
		return nil, eris.Errorf("bill: reference type %q does not carry bills", refType)
	}
	return &Comparator{
		pool:    pool,
		refType: refType,
		tol:     tol,
		now:     time.Now,
		log:     zap.L().With(zap.String("component", "bill-comparator")),
	}, nil
}

func (c *Comparator) Name() string {
	return strings.ReplaceAll(string(c.refType), "_", "-")
}

func (c *Comparator) RefType() model.ReferenceType {
	return c.refType
}

// GenerateReport compares every observed bill in the snapshot's sessions
// against the newest reference snapshot inside window. One-sided bills become
// missing-data observations.
func (c *Comparator) GenerateReport(ctx context.Context, window model.TimeRange) (*model.Report, error) {
	snap, err := c.latestSnapshot(ctx, window)
	if err != nil {
		return nil, err
	}

	refBills, err := c.referenceBills(ctx, snap)
	if err != nil {
		return nil, err
	}
	sessions := make(map[int]bool)
	refByKey := make(map[model.Key]Data, len(refBills))
	for _, b := range refBills {
		sessions[b.Session] = true
		refByKey[model.BillKey(b.PrintNo, b.Session)] = b
	}

	obsBills, err := c.observedBills(ctx)
	if err != nil {
		return nil, err
	}
	obsByKey := make(map[model.Key]Data, len(obsBills))
	for _, b := range obsBills {
		// Sessions the snapshot does not cover are out of scope.
		if !sessions[b.Session] {
			continue
		}
		obsByKey[model.BillKey(b.PrintNo, b.Session)] = b
	}

	report := model.NewReport(model.ReportID{
		RefType:        c.refType,
		RefDateTime:    snap,
		ReportDateTime: c.now().UTC(),
	}, "")

	for key, ref := range refByKey {
		obs, ok := obsByKey[key]
		if !ok {
			if err := report.AddObservedMissingObservation(key); err != nil {
				return nil, err
			}
			continue
		}
		o := model.NewObservation(report.ID.ReferenceID(), key)
		c.compareBill(o, obs, ref)
		if err := report.AddObservation(o); err != nil {
			return nil, err
		}
	}
	for key := range obsByKey {
		if _, ok := refByKey[key]; !ok {
			if err := report.AddRefMissingObservation(key); err != nil {
				return nil, err
			}
		}
	}

	c.log.Info("report generated",
		zap.String("ref_type", string(c.refType)),
		zap.Time("snapshot", snap),
		zap.Int("observed", report.ObservedCount()),
		zap.Int("mismatches", report.MismatchCount()),
	)
	return report, nil
}

func (c *Comparator) compareBill(o *model.Observation, obs, ref Data) {
	if c.tol.title(obs.Title) != c.tol.title(ref.Title) {
		o.AddMismatch(model.NewMismatch(model.MismatchBillTitle, obs.Title, ref.Title))
	}
	if c.tol.member(obs.Sponsor) != c.tol.member(ref.Sponsor) {
		o.AddMismatch(model.NewMismatch(model.MismatchBillSponsor, obs.Sponsor, ref.Sponsor))
	}
	if c.tol.memberList(obs.Cosponsors) != c.tol.memberList(ref.Cosponsors) {
		o.AddMismatch(model.NewMismatch(model.MismatchBillCosponsor,
			obs.CosponsorString(), ref.CosponsorString()))
	}
	if !c.tol.actionDate(obs.ActionDate).Equal(c.tol.actionDate(ref.ActionDate)) {
		o.AddMismatch(model.NewMismatch(model.MismatchBillActionDate,
			formatDate(obs.ActionDate), formatDate(ref.ActionDate)))
	}
}

// latestSnapshot finds the newest reference snapshot time inside window.
func (c *Comparator) latestSnapshot(ctx context.Context, window model.TimeRange) (time.Time, error) {
	var snap *time.Time
	err := c.pool.QueryRow(ctx,
		`SELECT MAX(ref_date_time) FROM spotcheck.ref_bill
		 WHERE ref_type = $1 AND ref_date_time >= $2 AND ref_date_time < $3`,
		string(c.refType), window.Start.UTC(), window.End.UTC(),
	).Scan(&snap)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "bill: find snapshot for %s", c.refType)
	}
	if snap == nil {
		return time.Time{}, eris.Wrapf(model.ErrReferenceDataNotFound,
			"bill: no %s snapshot in [%s, %s)", c.refType,
			window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
	}
	return snap.UTC(), nil
}

func (c *Comparator) referenceBills(ctx context.Context, snap time.Time) ([]Data, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT print_no, session, title, sponsor, cosponsors, action_date
		 FROM spotcheck.ref_bill WHERE ref_type = $1 AND ref_date_time = $2`,
		string(c.refType), snap,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "bill: load reference snapshot %s", c.refType)
	}
	defer rows.Close()
	return scanBills(rows)
}

func (c *Comparator) observedBills(ctx context.Context) ([]Data, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT print_no, session, title, sponsor, cosponsors, action_date
		 FROM spotcheck.obs_bill`)
	if err != nil {
		return nil, eris.Wrap(err, "bill: load observed bills")
	}
	defer rows.Close()
	return scanBills(rows)
}

type billRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBills(rows billRows) ([]Data, error) {
	var out []Data
	for rows.Next() {
		var b Data
		var cosponsors string
		var actionDate *time.Time
		if err := rows.Scan(&b.PrintNo, &b.Session, &b.Title, &b.Sponsor, &cosponsors, &actionDate); err != nil {
			return nil, eris.Wrap(err, "bill: scan bill row")
		}
		if cosponsors != "" {
			b.Cosponsors = strings.Split(cosponsors, ", ")
		}
		if actionDate != nil {
			b.ActionDate = *actionDate
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "bill: iterate bill rows")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
