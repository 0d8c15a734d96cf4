package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS report (
	id               TEXT PRIMARY KEY,
	ref_type         TEXT NOT NULL,
	ref_date_time    DATETIME NOT NULL,
	report_date_time DATETIME NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	observed_count   INTEGER NOT NULL DEFAULT 0,
	mismatch_count   INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (ref_type, ref_date_time, report_date_time)
);

CREATE TABLE IF NOT EXISTS observation (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id       TEXT NOT NULL REFERENCES report(id),
	content_type    TEXT NOT NULL,
	key_id          TEXT NOT NULL,
	mismatch_type   TEXT,
	observed_value  TEXT NOT NULL DEFAULT '',
	reference_value TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS mismatch (
	mismatch_id      TEXT PRIMARY KEY,
	content_type     TEXT NOT NULL,
	key_id           TEXT NOT NULL,
	data_source      TEXT NOT NULL,
	ref_type         TEXT NOT NULL,
	mismatch_type    TEXT NOT NULL,
	state            TEXT NOT NULL,
	observed_value   TEXT NOT NULL DEFAULT '',
	reference_value  TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	ignore_kind      TEXT NOT NULL DEFAULT 'not_ignored',
	ignore_until     DATETIME,
	issue_ids        TEXT NOT NULL DEFAULT '[]',
	first_detected   DATETIME NOT NULL,
	last_observed    DATETIME NOT NULL,
	ref_date_time    DATETIME NOT NULL,
	report_date_time DATETIME NOT NULL,
	UNIQUE (content_type, key_id, mismatch_type)
);

CREATE TABLE IF NOT EXISTS run_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ref_type       TEXT NOT NULL,
	comparator     TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     DATETIME NOT NULL,
	completed_at   DATETIME,
	observed_count INTEGER NOT NULL DEFAULT 0,
	mismatch_count INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_mismatch_key ON mismatch(content_type, key_id);
CREATE INDEX IF NOT EXISTS idx_mismatch_last_observed ON mismatch(last_observed);
CREATE INDEX IF NOT EXISTS idx_mismatch_state ON mismatch(state);
CREATE INDEX IF NOT EXISTS idx_observation_report ON observation(report_id);
CREATE INDEX IF NOT EXISTS idx_run_log_started ON run_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteMismatchCols = `mismatch_id, content_type, key_id, ref_type, mismatch_type, state,
	observed_value, reference_value, notes, ignore_kind, ignore_until, issue_ids,
	first_detected, last_observed, ref_date_time, report_date_time`

// --- reconciler path ---

type sqliteTx struct {
	tx *sql.Tx
}

func (s *SQLiteStore) ReconcileReport(ctx context.Context, fn func(tx ReportTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit report")
}

func (t *sqliteTx) CurrentMismatches(ctx context.Context, key model.Key) ([]model.DenormMismatch, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+sqliteMismatchCols+` FROM mismatch WHERE content_type = ? AND key_id = ?`,
		string(key.Content), key.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: current mismatches for %s", key)
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
	return out, eris.Wrap(rows.Err(), "sqlite: current mismatches iterate")
}

func (t *sqliteTx) InsertMismatch(ctx context.Context, row model.DenormMismatch) error {
	issueJSON, err := json.Marshal(model.NormalizeIssueIDs(row.IssueIDs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issue ids")
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO mismatch (mismatch_id, content_type, key_id, data_source, ref_type,
			mismatch_type, state, observed_value, reference_value, notes,
			ignore_kind, ignore_until, issue_ids, first_detected, last_observed,
			ref_date_time, report_date_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.MismatchID, string(row.Key.Content), row.Key.ID, string(row.RefType.DataSource()),
		string(row.RefType), string(row.Type), string(row.State),
		row.ObservedValue, row.ReferenceValue, row.Notes,
		string(row.IgnoreStatus.Kind), nullTime(row.IgnoreStatus.Until), string(issueJSON),
		row.FirstDetected.UTC(), row.LastObserved.UTC(),
		row.LastReportID.RefDateTime.UTC(), row.LastReportID.ReportDateTime.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert mismatch %s", row.MismatchID)
}

func (t *sqliteTx) UpdateMismatch(ctx context.Context, row model.DenormMismatch) error {
	issueJSON, err := json.Marshal(model.NormalizeIssueIDs(row.IssueIDs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issue ids")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE mismatch SET data_source = ?, ref_type = ?, state = ?, observed_value = ?,
			reference_value = ?, notes = ?, ignore_kind = ?, ignore_until = ?, issue_ids = ?,
			last_observed = ?, ref_date_time = ?, report_date_time = ?
		 WHERE mismatch_id = ?`,
		string(row.RefType.DataSource()), string(row.RefType), string(row.State),
		row.ObservedValue, row.ReferenceValue, row.Notes,
		string(row.IgnoreStatus.Kind), nullTime(row.IgnoreStatus.Until), string(issueJSON),
		row.LastObserved.UTC(), row.LastReportID.RefDateTime.UTC(), row.LastReportID.ReportDateTime.UTC(),
		row.MismatchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update mismatch %s", row.MismatchID)
	}
	return checkAffected(res, "mismatch", row.MismatchID)
}

func (t *sqliteTx) ArchiveReport(ctx context.Context, r *model.Report) error {
	id := uuid.New().String()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO report (id, ref_type, ref_date_time, report_date_time, notes, observed_count, mismatch_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(r.ID.RefType), r.ID.RefDateTime.UTC(), r.ID.ReportDateTime.UTC(),
		r.Notes, r.ObservedCount(), r.MismatchCount(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: archive report header")
	}

	for _, key := range r.SortedKeys() {
		obs := r.Observations[key]
		if len(obs.Mismatches) == 0 {
			// An explicit empty observation is part of history: it records
			// that the key was checked clean.
			if _, err := t.tx.ExecContext(ctx,
				`INSERT INTO observation (report_id, content_type, key_id) VALUES (?, ?, ?)`,
				id, string(key.Content), key.ID,
			); err != nil {
				return eris.Wrapf(err, "sqlite: archive empty observation %s", key)
			}
			continue
		}
		for _, mm := range obs.Mismatches {
			if _, err := t.tx.ExecContext(ctx,
				`INSERT INTO observation (report_id, content_type, key_id, mismatch_type, observed_value, reference_value, notes)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, string(key.Content), key.ID, string(mm.Type),
				mm.ObservedValue, mm.ReferenceValue, mm.Notes,
			); err != nil {
				return eris.Wrapf(err, "sqlite: archive observation %s %s", key, mm.Type)
			}
		}
	}
	return nil
}

// --- query service ---

func (s *SQLiteStore) GetMismatches(ctx context.Context, q MismatchQuery, page LimitOffset) (*MismatchPage, error) {
	c := mismatchConds(q, sqlitePlaceholder)
	where := c.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mismatch`+where, c.args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "sqlite: count mismatches")
	}

	query := `SELECT ` + sqliteMismatchCols + ` FROM mismatch` + where +
		` ORDER BY last_observed DESC, mismatch_id`
	args := c.args
	if !page.IsAll() {
		query += ` LIMIT ? OFFSET ?`
		args = append(append([]any{}, args...), page.Limit, page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get mismatches")
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
	return out, eris.Wrap(rows.Err(), "sqlite: get mismatches iterate")
}

func (s *SQLiteStore) GetMismatch(ctx context.Context, mismatchID string) (*model.DenormMismatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteMismatchCols+` FROM mismatch WHERE mismatch_id = ?`, mismatchID)
	m, err := scanMismatch(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Entity: "mismatch", ID: mismatchID}
	}
	return m, err
}

func (s *SQLiteStore) StatusSummary(ctx context.Context, q MismatchQuery) (*StatusSummary, error) {
	c := mismatchConds(statusQuery(q), sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM mismatch`+c.where()+` GROUP BY state`, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status summary")
	}
	defer rows.Close()

	out := &StatusSummary{Counts: make(map[model.MismatchState]int)}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status summary")
		}
		out.Counts[model.MismatchState(state)] = n
		out.Total += n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: status summary iterate")
}

func (s *SQLiteStore) TypeSummary(ctx context.Context, q MismatchQuery) (*TypeSummary, error) {
	c := mismatchConds(typeQuery(q), sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mismatch_type, COUNT(*) FROM mismatch`+c.where()+` GROUP BY mismatch_type`, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: type summary")
	}
	defer rows.Close()

	out := &TypeSummary{Counts: make(map[model.MismatchType]int)}
	for rows.Next() {
		var mt string
		var n int
		if err := rows.Scan(&mt, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan type summary")
		}
		out.Counts[model.MismatchType(mt)] = n
		out.Total += n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: type summary iterate")
}

func (s *SQLiteStore) ContentTypeSummary(ctx context.Context, q MismatchQuery) (*ContentTypeSummary, error) {
	c := mismatchConds(q, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_type, state, COUNT(*) FROM mismatch`+c.where()+` GROUP BY content_type, state`, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: content type summary")
	}
	defer rows.Close()

	out := &ContentTypeSummary{Counts: make(map[model.ContentType]map[model.MismatchState]int)}
	for rows.Next() {
		var ct, state string
		var n int
		if err := rows.Scan(&ct, &state, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan content type summary")
		}
		key := model.ContentType(ct)
		if out.Counts[key] == nil {
			out.Counts[key] = make(map[model.MismatchState]int)
		}
		out.Counts[key][model.MismatchState(state)] = n
		out.Total += n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: content type summary iterate")
}

// --- mutation API ---

func (s *SQLiteStore) SetIgnoreStatus(ctx context.Context, mismatchID string, status model.IgnoreStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mismatch SET ignore_kind = ?, ignore_until = ? WHERE mismatch_id = ?`,
		string(status.Kind), nullTime(status.Until), mismatchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set ignore status %s", mismatchID)
	}
	return checkAffected(res, "mismatch", mismatchID)
}

func (s *SQLiteStore) AddIssueID(ctx context.Context, mismatchID, issueID string) error {
	return s.mutateIssueIDs(ctx, mismatchID, func(ids []string) []string {
		return model.NormalizeIssueIDs(append(ids, issueID))
	})
}

func (s *SQLiteStore) DeleteIssueID(ctx context.Context, mismatchID, issueID string) error {
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

func (s *SQLiteStore) mutateIssueIDs(ctx context.Context, mismatchID string, mutate func([]string) []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin issue mutation")
	}
	defer tx.Rollback() //nolint:errcheck

	var issueJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT issue_ids FROM mismatch WHERE mismatch_id = ?`, mismatchID).Scan(&issueJSON)
	if err == sql.ErrNoRows {
		return &model.NotFoundError{Entity: "mismatch", ID: mismatchID}
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load issue ids %s", mismatchID)
	}

	var ids []string
	if err := json.Unmarshal([]byte(issueJSON), &ids); err != nil {
		return eris.Wrapf(err, "sqlite: unmarshal issue ids %s", mismatchID)
	}

	updated, err := json.Marshal(mutate(ids))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issue ids")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE mismatch SET issue_ids = ? WHERE mismatch_id = ?`, string(updated), mismatchID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update issue ids %s", mismatchID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit issue mutation")
}

// --- run log ---

func (s *SQLiteStore) StartRun(ctx context.Context, refType model.ReferenceType, comparator string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (ref_type, comparator, status, started_at) VALUES (?, ?, ?, ?)`,
		string(refType), comparator, RunRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start run for %s", comparator)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: run id")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID int64, result RunResult) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, observed_count = ?, mismatch_count = ? WHERE id = ?`,
		RunComplete, time.Now().UTC(), result.ObservedCount, result.MismatchCount, runID,
	)
	return eris.Wrapf(err, "sqlite: complete run %d", runID)
}

func (s *SQLiteStore) SkipRun(ctx context.Context, runID int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		RunSkipped, time.Now().UTC(), reason, runID,
	)
	return eris.Wrapf(err, "sqlite: skip run %d", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		RunFailed, time.Now().UTC(), errMsg, runID,
	)
	return eris.Wrapf(err, "sqlite: fail run %d", runID)
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ref_type, comparator, status, started_at, completed_at, observed_count, mismatch_count, error
		 FROM run_log ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent runs")
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var refType string
		var completed sql.NullTime
		if err := rows.Scan(&e.ID, &refType, &e.Comparator, &e.Status, &e.StartedAt,
			&completed, &e.ObservedCount, &e.MismatchCount, &e.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run entry")
		}
		e.RefType = model.ReferenceType(refType)
		if completed.Valid {
			t := completed.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent runs iterate")
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanMismatch(row scannable) (*model.DenormMismatch, error) {
	var m model.DenormMismatch
	var contentType, refType, mmType, state, ignoreKind, issueJSON string
	var ignoreUntil sql.NullTime
	var refDT, reportDT time.Time

	err := row.Scan(&m.MismatchID, &contentType, &m.Key.ID, &refType, &mmType, &state,
		&m.ObservedValue, &m.ReferenceValue, &m.Notes, &ignoreKind, &ignoreUntil, &issueJSON,
		&m.FirstDetected, &m.LastObserved, &refDT, &reportDT)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan mismatch")
	}

	m.Key.Content = model.ContentType(contentType)
	m.RefType = model.ReferenceType(refType)
	m.Type = model.MismatchType(mmType)
	m.State = model.MismatchState(state)
	m.IgnoreStatus = model.IgnoreStatus{Kind: model.IgnoreKind(ignoreKind)}
	if ignoreUntil.Valid {
		m.IgnoreStatus.Until = ignoreUntil.Time
	}
	if err := json.Unmarshal([]byte(issueJSON), &m.IssueIDs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal issue ids")
	}
	m.LastReportID = model.ReportID{RefType: m.RefType, RefDateTime: refDT, ReportDateTime: reportDT}
	return &m, nil
}

func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return &model.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
