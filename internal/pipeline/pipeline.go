package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stayware/message-etl/internal/config"
	gateway "github.com/stayware/message-etl/internal/gateways"
	"github.com/stayware/message-etl/internal/model"
	"github.com/stayware/message-etl/pkg/logger"
	"github.com/stayware/message-etl/pkg/prom"
)

// ErrStoreConnect marks a run that aborted because the store never became
// reachable.
var ErrStoreConnect = errors.New("could not connect to message store")

// RecordCursor yields raw upstream records one at a time. Next returns
// (nil, nil) once the stream is exhausted.
type RecordCursor interface {
	Next(ctx context.Context) (*gateway.RawConversation, error)
	LastOffset() int
}

type Gateway interface {
	Messages(since *time.Time) RecordCursor
}

type Store interface {
	Connect(ctx context.Context) bool
	Upsert(ctx context.Context, m *model.Message) bool
	LatestTimestamp(ctx context.Context) *time.Time
	Count(ctx context.Context) (int64, error)
	Disconnect()
}

type Transformer interface {
	Transform(ctx context.Context, raw *gateway.RawConversation) (*model.Message, error)
}

type Notifier interface {
	NotifyFailure(subject, body string)
}

// Report summarizes one ETL run. Processed counts records transformed
// and stored; Success means no record failed.
type Report struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Processed int
	Errors    int
	Success   bool
	Err       error
}

// Pipeline drives one extract/transform/load cycle. Records are processed
// strictly in upstream order, one at a time.
type Pipeline struct {
	cfg         *config.Config
	gw          Gateway
	store       Store
	transformer Transformer
	notifier    Notifier

	now func() time.Time
}

func New(cfg *config.Config, gw Gateway, store Store, transformer Transformer, notifier Notifier) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		gw:          gw,
		store:       store,
		transformer: transformer,
		notifier:    notifier,
		now:         time.Now,
	}
}

// Run executes one full cycle. A nil since falls back to the timestamp of
// the most recent stored message, so repeated runs pick up where the last
// one left off. The boundary record is re-fetched and overwritten, which
// the keyed upsert makes harmless.
func (p *Pipeline) Run(ctx context.Context, since *time.Time) (report Report) {
	report.RunID = uuid.New()
	report.StartedAt = p.now()

	defer func() {
		report.Duration = p.now().Sub(report.StartedAt)
		prom.ObserveHistogram(prom.SystemPipeline, prom.MetricRunDuration, report.Duration.Seconds())

		if r := recover(); r != nil {
			report.Success = false
			report.Err = fmt.Errorf("pipeline panicked: %v", r)
			logger.Error("pipeline run panicked", "run_id", report.RunID, "panic", r)
			p.notifier.NotifyFailure("Hostaway Message ETL Failed",
				fmt.Sprintf("Run %s aborted with an unhandled error: %v", report.RunID, r))
		}
	}()

	if err := p.cfg.Validate(); err != nil {
		report.Err = err
		logger.Error("pipeline configuration is incomplete", "run_id", report.RunID, "error", err)
		p.notifier.NotifyFailure("Hostaway Message ETL Failed",
			fmt.Sprintf("Run %s aborted before start: %v", report.RunID, err))
		return report
	}

	logger.Info("pipeline run starting", "run_id", report.RunID, "dry_run", p.cfg.EnableDryRun)

	defer p.store.Disconnect()
	if !p.store.Connect(ctx) {
		report.Err = ErrStoreConnect
		logger.Error("pipeline aborted, store is unreachable", "run_id", report.RunID)
		p.notifier.NotifyFailure("Hostaway Message ETL Failed",
			fmt.Sprintf("Run %s aborted: %v", report.RunID, ErrStoreConnect))
		return report
	}

	if since == nil {
		since = p.store.LatestTimestamp(ctx)
		if since != nil {
			logger.Info("resuming from last stored message", "run_id", report.RunID, "since", since.Format(time.RFC3339))
		} else {
			logger.Info("store is empty, performing full extraction", "run_id", report.RunID)
		}
	} else {
		logger.Info("extracting with explicit cutoff", "run_id", report.RunID, "since", since.Format(time.RFC3339))
	}

	cursor := p.gw.Messages(since)
	for {
		raw, err := cursor.Next(ctx)
		if err != nil {
			report.Err = err
			report.Success = false
			logger.Error("extraction failed", "run_id", report.RunID, "offset", cursor.LastOffset(), "error", err)
			p.notifier.NotifyFailure("Hostaway Message ETL Failed",
				fmt.Sprintf("Run %s failed during extraction at offset %d: %v", report.RunID, cursor.LastOffset(), err))
			return report
		}
		if raw == nil {
			break
		}

		if ok := p.processRecord(ctx, raw); ok {
			report.Processed++
			prom.IncCounter(prom.SystemPipeline, prom.MetricRecordsProcessed)
		} else {
			report.Errors++
			prom.IncCounter(prom.SystemPipeline, prom.MetricRecordsFailed)
		}
	}

	report.Success = report.Errors == 0
	report.Duration = p.now().Sub(report.StartedAt)
	if !report.Success {
		p.notifier.NotifyFailure("Hostaway Message ETL Completed with Errors",
			fmt.Sprintf("Run %s stored %d records, %d failed.", report.RunID, report.Processed, report.Errors))
	}

	logger.Info("pipeline run finished",
		"run_id", report.RunID,
		"processed", report.Processed,
		"errors", report.Errors,
		"success", report.Success,
		"duration", report.Duration.String(),
	)
	return report
}

// processRecord transforms and stores one record. Failures are logged and
// absorbed so one bad record never stops the stream.
func (p *Pipeline) processRecord(ctx context.Context, raw *gateway.RawConversation) bool {
	msg, err := p.transformer.Transform(ctx, raw)
	if err != nil {
		logger.Error("record transformation failed", "conversation_id", raw.ID, "error", err)
		return false
	}
	return p.store.Upsert(ctx, msg)
}
