package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// LogNotifier writes events to the structured log. It is the fallback when
// no webhook URL is configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLog creates a log-only notifier.
func NewLog() *LogNotifier {
	return &LogNotifier{log: zap.L().With(zap.String("component", "notify"))}
}

func (l *LogNotifier) ReportCompleted(_ context.Context, digest ReportDigest) {
	l.log.Info("report completed",
		zap.String("ref_type", string(digest.RefType)),
		zap.Time("report_time", digest.ReportTime),
		zap.Int("observed", digest.ObservedCount),
		zap.Int("open_mismatches", digest.OpenMismatches),
		zap.String("notes", digest.Notes),
	)
}

func (l *LogNotifier) RunFailed(_ context.Context, refType model.ReferenceType, err error, fatal bool) {
	l.log.Error("comparison run failed",
		zap.String("ref_type", string(refType)),
		zap.Bool("fatal", fatal),
		zap.Error(err),
	)
}
