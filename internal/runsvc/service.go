// Package runsvc orchestrates comparison runs: a reference snapshot arriving
// triggers every comparator registered for its type, each producing a report
// the reconciler folds into the current mismatch state.
package runsvc

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/legis-watch/spotcheck-cli/internal/compare"
	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/notify"
	"github.com/legis-watch/spotcheck-cli/internal/store"
)

// ReportSaver persists generated reports. The reconciler implements it.
type ReportSaver interface {
	SaveReport(ctx context.Context, r *model.Report) error
}

// RunLog records the lifecycle of comparison runs. The store implements it.
type RunLog interface {
	StartRun(ctx context.Context, refType model.ReferenceType, comparator string) (int64, error)
	CompleteRun(ctx context.Context, runID int64, result store.RunResult) error
	SkipRun(ctx context.Context, runID int64, reason string) error
	FailRun(ctx context.Context, runID int64, errMsg string) error
}

// Config holds run service tuning.
type Config struct {
	// NotesCutoff truncates report notes in notifications. Zero means the
	// default of 140.
	NotesCutoff int `yaml:"notes_cutoff" mapstructure:"notes_cutoff"`
}

const defaultNotesCutoff = 140

// Service runs comparators in response to reference arrivals. Repeated
// triggers of the same reference type serialize; distinct types may run
// concurrently.
type Service struct {
	reg      *compare.Registry
	saver    ReportSaver
	runlog   RunLog
	notifier notify.Notifier
	cutoff   int
	log      *zap.Logger

	mu       sync.Mutex
	refLocks map[model.ReferenceType]*sync.Mutex
}

// New creates a run service.
func New(reg *compare.Registry, saver ReportSaver, runlog RunLog, notifier notify.Notifier, cfg Config) *Service {
	cutoff := cfg.NotesCutoff
	if cutoff <= 0 {
		cutoff = defaultNotesCutoff
	}
	return &Service{
		reg:      reg,
		saver:    saver,
		runlog:   runlog,
		notifier: notifier,
		cutoff:   cutoff,
		log:      zap.L().With(zap.String("component", "runsvc")),
		refLocks: make(map[model.ReferenceType]*sync.Mutex),
	}
}

// HandleReferenceArrived runs every comparator registered for refType over
// window, serially. A comparator failure is recorded and notified but does
// not stop its siblings.
func (s *Service) HandleReferenceArrived(ctx context.Context, refType model.ReferenceType, window model.TimeRange) error {
	if !refType.Valid() {
		return &model.InvalidArgumentError{Field: "ref_type", Reason: "unknown reference type"}
	}

	lock := s.refLock(refType)
	lock.Lock()
	defer lock.Unlock()

	comps := s.reg.ForRefType(refType)
	if len(comps) == 0 {
		s.log.Warn("no comparators registered", zap.String("ref_type", string(refType)))
		return nil
	}
	for _, c := range comps {
		s.runReport(ctx, c, window)
	}
	return nil
}

// RunAll triggers every registered reference type concurrently over window.
func (s *Service) RunAll(ctx context.Context, window model.TimeRange) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, rt := range s.reg.RefTypes() {
		g.Go(func() error {
			return s.HandleReferenceArrived(ctx, rt, window)
		})
	}
	return g.Wait()
}

// runReport drives one comparator through generate, save, log and notify.
// Errors other than missing reference data are swallowed after recording so
// sibling comparators still run.
func (s *Service) runReport(ctx context.Context, c compare.Comparator, window model.TimeRange) {
	refType := c.RefType()
	runID, err := s.runlog.StartRun(ctx, refType, c.Name())
	if err != nil {
		s.log.Error("failed to open run log entry",
			zap.String("comparator", c.Name()), zap.Error(err))
		return
	}

	report, err := c.GenerateReport(ctx, window)
	if err != nil {
		if model.IsReferenceDataNotFound(err) {
			s.log.Info("no reference data, run skipped",
				zap.String("comparator", c.Name()),
				zap.String("ref_type", string(refType)))
			s.recordSkip(ctx, runID, err)
			return
		}
		s.recordFailure(ctx, runID, refType, eris.Wrapf(err, "generate report %s", c.Name()))
		return
	}

	if err := s.saver.SaveReport(ctx, report); err != nil {
		s.recordFailure(ctx, runID, refType, eris.Wrapf(err, "save report %s", c.Name()))
		return
	}

	result := store.RunResult{
		ObservedCount: report.ObservedCount(),
		MismatchCount: report.MismatchCount(),
	}
	if err := s.runlog.CompleteRun(ctx, runID, result); err != nil {
		s.log.Error("failed to close run log entry",
			zap.String("comparator", c.Name()), zap.Error(err))
	}

	s.notifier.ReportCompleted(ctx, notify.ReportDigest{
		RefType:        refType,
		ReferenceTime:  report.ID.RefDateTime,
		ReportTime:     report.ID.ReportDateTime,
		ObservedCount:  report.ObservedCount(),
		OpenMismatches: report.OpenMismatchCount(false),
		Notes:          truncateNotes(report.Notes, s.cutoff),
	})
}

func (s *Service) recordSkip(ctx context.Context, runID int64, cause error) {
	if err := s.runlog.SkipRun(ctx, runID, cause.Error()); err != nil {
		s.log.Error("failed to record skipped run", zap.Error(err))
	}
}

func (s *Service) recordFailure(ctx context.Context, runID int64, refType model.ReferenceType, cause error) {
	failure := &model.ComparisonFailure{RefType: refType, Err: cause}
	s.log.Error("comparison run failed",
		zap.String("ref_type", string(refType)), zap.Error(cause))
	if err := s.runlog.FailRun(ctx, runID, cause.Error()); err != nil {
		s.log.Error("failed to record failed run", zap.Error(err))
	}
	s.notifier.RunFailed(ctx, refType, failure, true)
}

func (s *Service) refLock(refType model.ReferenceType) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.refLocks[refType]
	if !ok {
		lock = &sync.Mutex{}
		s.refLocks[refType] = lock
	}
	return lock
}

// truncateNotes bounds notes for notification payloads, marking the cut.
// The cut lands on a rune boundary so multi-byte text stays valid UTF-8.
func truncateNotes(notes string, cutoff int) string {
	if len(notes) <= cutoff {
		return notes
	}
	cut := cutoff
	for cut > 0 && !utf8.RuneStart(notes[cut]) {
		cut--
	}
	return notes[:cut] + "..."
}
