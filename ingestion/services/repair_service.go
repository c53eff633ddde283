package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/metrics"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// StalledUpload is a non-terminal upload together with its store of origin.
type StalledUpload struct {
	Upload models.UploadRecord `json:"upload"`
	Store  string              `json:"store"`
	Idle   time.Duration       `json:"idle"`
}

type RepairReport struct {
	Found    int      `json:"found"`
	Requeued int      `json:"requeued"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// RepairService finds uploads the extraction engine lost track of and queues them again.
// It never writes processing status; the engine remains its only writer.
type RepairService struct {
	chain            *StoreChain
	tasks            TaskEnqueuer
	notifier         utils.Notifier
	defaultOlderThan time.Duration
	logger           *zap.Logger
	metrics          *metrics.Registry
	now              func() time.Time
}

func NewRepairService(chain *StoreChain, tasks TaskEnqueuer, notifier utils.Notifier, defaultOlderThan time.Duration, logger *zap.Logger, m *metrics.Registry) *RepairService {
	if notifier == nil {
		notifier = utils.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultOlderThan <= 0 {
		defaultOlderThan = 15 * time.Minute
	}
	return &RepairService{
		chain:            chain,
		tasks:            tasks,
		notifier:         notifier,
		defaultOlderThan: defaultOlderThan,
		logger:           logger,
		metrics:          m,
		now:              time.Now,
	}
}

func (s *RepairService) DefaultOlderThan() time.Duration {
	return s.defaultOlderThan
}

// Diagnose lists queued or processing uploads idle for longer than olderThan across every
// store. An upload present in more than one store is reported once, from the first store.
// Unreachable stores are skipped unless none could be read.
func (s *RepairService) Diagnose(ctx context.Context, olderThan time.Duration) ([]StalledUpload, error) {
	if olderThan <= 0 {
		olderThan = s.defaultOlderThan
	}
	now := s.now()
	cutoff := now.Add(-olderThan)

	seen := make(map[uuid.UUID]struct{})
	var stalled []StalledUpload
	var failed []string
	var lastErr error
	stores := s.chain.Stores()
	for _, store := range stores {
		uploads, err := store.ListUnfinishedUploads(ctx, cutoff)
		if err != nil {
			failed = append(failed, store.Store())
			lastErr = err
			s.logger.Warn("Failed to list unfinished uploads",
				zap.String("store", store.Store()),
				zap.Error(err))
			continue
		}
		for _, upload := range uploads {
			if upload.ProcessingStatus.IsTerminal() {
				continue
			}
			if _, dup := seen[upload.ID]; dup {
				continue
			}
			seen[upload.ID] = struct{}{}
			stalled = append(stalled, StalledUpload{
				Upload: upload,
				Store:  store.Store(),
				Idle:   now.Sub(upload.LastTransitionAt()),
			})
		}
	}

	if len(stores) > 0 && len(failed) == len(stores) {
		return nil, utils.NewAppError(utils.KindTransient, "diagnose stalled uploads", "upload stores unreachable").
			WithStore(strings.Join(failed, ",")).Wrap(lastErr)
	}

	s.metrics.SetStalled(len(stalled))
	return stalled, nil
}

// Repair re-enqueues extraction for every stalled upload. An extraction already queued
// for the same upload counts as skipped.
func (s *RepairService) Repair(ctx context.Context, olderThan time.Duration) (*RepairReport, error) {
	stalled, err := s.Diagnose(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{Found: len(stalled)}
	for _, item := range stalled {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		task, err := NewExtractUploadTask(ExtractUploadPayload{
			UploadID:    item.Upload.ID,
			Store:       item.Store,
			StoragePath: item.Upload.StoragePath,
			CarrierID:   item.Upload.CarrierID,
		})
		if err == nil {
			_, err = s.tasks.Enqueue(task, asynq.Unique(s.defaultOlderThan))
		}
		switch {
		case err == nil:
			report.Requeued++
			s.logger.Info("Re-enqueued stalled upload",
				zap.String("upload_id", item.Upload.ID.String()),
				zap.String("store", item.Store),
				zap.String("status", string(item.Upload.ProcessingStatus)),
				zap.Duration("idle", item.Idle))
		case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
			report.Skipped++
		default:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", item.Upload.ID, err))
			s.logger.Error("Failed to re-enqueue stalled upload",
				zap.String("upload_id", item.Upload.ID.String()),
				zap.String("store", item.Store),
				zap.Error(err))
		}
	}

	if report.Requeued > 0 || report.Failed > 0 {
		level := utils.NotifyInfo
		if report.Failed > 0 {
			level = utils.NotifyWarning
		}
		s.notifier.Notify(utils.Notification{
			Level:     level,
			Topic:     "uploads",
			Message:   fmt.Sprintf("Stalled EDI uploads: %d requeued, %d failed", report.Requeued, report.Failed),
			Timestamp: s.now().UTC(),
		})
	}
	return report, nil
}

// HandleRepairTask runs a repair for an uploads:repair_stalled task.
func (s *RepairService) HandleRepairTask(ctx context.Context, t *asynq.Task) error {
	var payload RepairStalledPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode repair payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	report, err := s.Repair(ctx, payload.OlderThan)
	if err != nil {
		return err
	}
	s.logger.Info("Stalled upload sweep finished",
		zap.Int("found", report.Found),
		zap.Int("requeued", report.Requeued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return nil
}

func (s *RepairService) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeRepairStalled, s.HandleRepairTask)
}
