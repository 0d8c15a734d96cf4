package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/legis-watch/spotcheck-cli/internal/db"
	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (reference mirror loads, comparators).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgMismatchCols = `mismatch_id, content_type, key_id, ref_type, mismatch_type, state,
	observed_value, reference_value, notes, ignore_kind, ignore_until, issue_ids,
	first_detected, last_observed, ref_date_time, report_date_time`

// --- reconciler path ---

type pgTx struct {
	tx pgx.Tx
}

func (s *PostgresStore) ReconcileReport(ctx context.Context, fn func(tx ReportTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit report")
}

func (t *pgTx) CurrentMismatches(ctx context.Context, key model.Key) ([]model.DenormMismatch, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+pgMismatchCols+` FROM spotcheck.mismatch WHERE content_type = $1 AND key_id = $2`,
		string(key.Content), key.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: current mismatches for %s", key)
	}
	defer rows.Close()

	var out []model.DenormMismatch
	for rows.Next() {
		m, err := scanMismatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: current mismatches iterate")
}

func (t *pgTx) InsertMismatch(ctx context.Context, row model.DenormMismatch) error {
	issueJSON, err := json.Marshal(model.NormalizeIssueIDs(row.IssueIDs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issue ids")
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO spotcheck.mismatch (mismatch_id, content_type, key_id, data_source, ref_type,
			mismatch_type, state, observed_value, reference_value, notes,
			ignore_kind, ignore_until, issue_ids, first_detected, last_observed,
			ref_date_time, report_date_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		row.MismatchID, string(row.Key.Content), row.Key.ID, string(row.RefType.DataSource()),
		string(row.RefType), string(row.Type), string(row.State),
		row.ObservedValue, row.ReferenceValue, row.Notes,
		string(row.IgnoreStatus.Kind), nullTime(row.IgnoreStatus.Until), string(issueJSON),
		row.FirstDetected.UTC(), row.LastObserved.UTC(),
		row.LastReportID.RefDateTime.UTC(), row.LastReportID.ReportDateTime.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert mismatch %s", row.MismatchID)
}

func (t *pgTx) UpdateMismatch(ctx context.Context, row model.DenormMismatch) error {
	issueJSON, err := json.Marshal(model.NormalizeIssueIDs(row.IssueIDs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issue ids")
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE spotcheck.mismatch SET data_source = $1, ref_type = $2, state = $3,
			observed_value = $4, reference_value = $5, notes = $6,
			ignore_kind = $7, ignore_until = $8, issue_ids = $9,
			last_observed = $10, ref_date_time = $11, report_date_time = $12
		 WHERE mismatch_id = $13`,
		string(row.RefType.DataSource()), string(row.RefType), string(row.State),
		row.ObservedValue, row.ReferenceValue, row.Notes,
		string(row.IgnoreStatus.Kind), nullTime(row.IgnoreStatus.Until), string(issueJSON),
		row.LastObserved.UTC(), row.LastReportID.RefDateTime.UTC(), row.LastReportID.ReportDateTime.UTC(),
		row.MismatchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update mismatch %s", row.MismatchID)
	}
	return checkTag(tag, "mismatch", row.MismatchID)
}

func (t *pgTx) ArchiveReport(ctx context.Context, r *model.Report) error {
	id := uuid.New().String()
	_, err := t.tx.Exec(ctx,
		`INSERT INTO spotcheck.report (id, ref_type, ref_date_time, report_date_time, notes, observed_count, mismatch_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(r.ID.RefType), r.ID.RefDateTime.UTC(), r.ID.ReportDateTime.UTC(),
		r.Notes, r.ObservedCount(), r.MismatchCount(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: archive report header")
	}

	var rows [][]any
	for _, key := range r.SortedKeys() {
		obs := r.Observations[key]
		if len(obs.Mismatches) == 0 {
			rows = append(rows, []any{id, string(key.Content), key.ID, nil, "", "", ""})
			continue
		}
		for _, mm := range obs.Mismatches {
			rows = append(rows, []any{
				id, string(key.Content), key.ID, string(mm.Type),
				mm.ObservedValue, mm.ReferenceValue, mm.Notes,
			})
		}
	}

	_, err = db.CopyFromTx(ctx, t.tx, "spotcheck", "observation",
		[]string{"report_id", "content_type", "key_id", "mismatch_type", "observed_value", "reference_value", "notes"},
		rows,
	)
	return eris.Wrap(err, "postgres: archive observations")
}

// --- query service ---

func (s *PostgresStore) GetMismatches(ctx context.Context, q MismatchQuery, page LimitOffset) (*MismatchPage, error) {
	c := mismatchConds(q, pgPlaceholder)
	where := c.where()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM spotcheck.mismatch`+where, c.args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "postgres: count mismatches")
	}

	query := `SELECT ` + pgMismatchCols + ` FROM spotcheck.mismatch` + where +
		` ORDER BY last_observed DESC, mismatch_id`
	args := c.args
	if !page.IsAll() {
		args = append(append([]any{}, args...), page.Limit, page.Offset)
		query += ` LIMIT ` + pgPlaceholder(len(args)-1) + ` OFFSET ` + pgPlaceholder(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get mismatches")
	}
	defer rows.Close()

	out := &MismatchPage{Total: total, Limit: page.Limit, Offset: page.Offset}
	for rows.Next() {
		m, err := scanMismatch(rows)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get mismatches iterate")
}

func (s *PostgresStore) GetMismatch(ctx context.Context, mismatchID string) (*model.DenormMismatch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgMismatchCols+` FROM spotcheck.mismatch WHERE mismatch_id = $1`, mismatchID)
	m, err := scanMismatch(row)
	if isNoRows(err) {
		return nil, &model.NotFoundError{Entity: "mismatch", ID: mismatchID}
	}
	return m, err
}

func (s *PostgresStore) StatusSummary(ctx context.Context, q MismatchQuery) (*StatusSummary, error) {
	c := mismatchConds(statusQuery(q), pgPlaceholder)
	rows, err := s.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM spotcheck.mismatch`+c.where()+` GROUP BY state`, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status summary")
	}
	defer rows.Close()

	out := &StatusSummary{Counts: make(map[model.MismatchState]int)}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status summary")
		}
		out.Counts[model.MismatchState(state)] = n
		out.Total += n
	}
	return out, eris.Wrap(rows.Err(), "postgres: status summary iterate")
}

func (s *PostgresStore) TypeSummary(ctx context.Context, q MismatchQuery) (*TypeSummary, error) {
	c := mismatchConds(typeQuery(q), pgPlaceholder)
	rows, err := s.pool.Query(ctx,
		`SELECT mismatch_type, COUNT(*) FROM spotcheck.mismatch`+c.where()+` GROUP BY mismatch_type`, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: type summary")
	}
	defer rows.Close()

	out := &TypeSummary{Counts: make(map[model.MismatchType]int)}
	for rows.Next() {
		var mt string
		var n int
		if err := rows.Scan(&mt, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan type summary")
		}
		out.Counts[model.MismatchType(mt)] = n
		out.Total += n
	}
	return out, eris.Wrap(rows.Err(), "postgres: type summary iterate")
}

func (s *PostgresStore) ContentTypeSummary(ctx context.Context, q MismatchQuery) (*ContentTypeSummary, error) {
	c := mismatchConds(q, pgPlaceholder)
	rows, err := s.pool.Query(ctx,
		`SELECT content_type, state, COUNT(*) FROM spotcheck.mismatch`+c.where()+` GROUP BY content_type, state`, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: content type summary")
	}
	defer rows.Close()

	out := &ContentTypeSummary{Counts: make(map[model.ContentType]map[model.MismatchState]int)}
	for rows.Next() {
		var ct, state string
		var n int
		if err := rows.Scan(&ct, &state, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan content type summary")
		}
		key := model.ContentType(ct)
		if out.Counts[key] == nil {
			out.Counts[key] = make(map[model.MismatchState]int)
		}
		out.Counts[key][model.MismatchState(state)] = n
		out.Total += n
	}
	return out, eris.Wrap(rows.Err(), "postgres: content type summary iterate")
}

// --- mutation API ---

func (s *PostgresStore) SetIgnoreStatus(ctx context.Context, mismatchID string, status model.IgnoreStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE spotcheck.mismatch SET ignore_kind = $1, ignore_until = $2 WHERE mismatch_id = $3`,
		string(status.Kind), nullTime(status.Until), mismatchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set ignore status %s", mismatchID)
	}
	return checkTag(tag, "mismatch", mismatchID)
}

func (s *PostgresStore) AddIssueID(ctx context.Context, mismatchID, issueID string) error {
	return s.mutateIssueIDs(ctx, mismatchID, func(ids []string) []string {
		return model.NormalizeIssueIDs(append(ids, issueID))
	})
}

func (s *PostgresStore) DeleteIssueID(ctx context.Context, mismatchID, issueID string) error {
	return s.mutateIssueIDs(ctx, mismatchID, func(ids []string) []string {
		out := ids[:0]
		for _, id := range ids {
			if id != issueID {
				out = append(out, id)
			}
		}
		return out
	})
}

func (s *PostgresStore) mutateIssueIDs(ctx context.Context, mismatchID string, mutate func([]string) []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin issue mutation")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var issueJSON string
	err = tx.QueryRow(ctx,
		`SELECT issue_ids FROM spotcheck.mismatch WHERE mismatch_id = $1 FOR UPDATE`, mismatchID,
	).Scan(&issueJSON)
	if isNoRows(err) {
		return &model.NotFoundError{Entity: "mismatch", ID: mismatchID}
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: load issue ids %s", mismatchID)
	}

	var ids []string
	if err := json.Unmarshal([]byte(issueJSON), &ids); err != nil {
		return eris.Wrapf(err, "postgres: unmarshal issue ids %s", mismatchID)
	}

	updated, err := json.Marshal(mutate(ids))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issue ids")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE spotcheck.mismatch SET issue_ids = $1 WHERE mismatch_id = $2`, string(updated), mismatchID,
	); err != nil {
		return eris.Wrapf(err, "postgres: update issue ids %s", mismatchID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit issue mutation")
}

// --- run log ---

func (s *PostgresStore) StartRun(ctx context.Context, refType model.ReferenceType, comparator string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO spotcheck.run_log (ref_type, comparator, status, started_at)
		 VALUES ($1, $2, $3, now()) RETURNING id`,
		string(refType), comparator, RunRunning,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start run for %s", comparator)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID int64, result RunResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE spotcheck.run_log SET status = $1, completed_at = now(), observed_count = $2, mismatch_count = $3 WHERE id = $4`,
		RunComplete, result.ObservedCount, result.MismatchCount, runID,
	)
	return eris.Wrapf(err, "postgres: complete run %d", runID)
}

func (s *PostgresStore) SkipRun(ctx context.Context, runID int64, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE spotcheck.run_log SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		RunSkipped, reason, runID,
	)
	return eris.Wrapf(err, "postgres: skip run %d", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE spotcheck.run_log SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		RunFailed, errMsg, runID,
	)
	return eris.Wrapf(err, "postgres: fail run %d", runID)
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, ref_type, comparator, status, started_at, completed_at, observed_count, mismatch_count, error
		 FROM spotcheck.run_log ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent runs")
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var refType string
		var completed *time.Time
		if err := rows.Scan(&e.ID, &refType, &e.Comparator, &e.Status, &e.StartedAt,
			&completed, &e.ObservedCount, &e.MismatchCount, &e.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run entry")
		}
		e.RefType = model.ReferenceType(refType)
		e.CompletedAt = completed
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent runs iterate")
}

// --- helpers ---

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}
