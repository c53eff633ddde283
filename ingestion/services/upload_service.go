package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeExtractUpload  = "edi:extract"
	TypeRepairStalled  = "uploads:repair_stalled"
	extractTaskTimeout = 10 * time.Minute
)

// ExtractUploadPayload is consumed by the extraction engine.
type ExtractUploadPayload struct {
	UploadID    uuid.UUID `json:"upload_id"`
	Store       string    `json:"store"`
	StoragePath string    `json:"storage_path"`
	CarrierID   string    `json:"carrier_id"`
}

type RepairStalledPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

func NewExtractUploadTask(payload ExtractUploadPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExtractUpload, raw, asynq.MaxRetry(3), asynq.Timeout(extractTaskTimeout)), nil
}

func NewRepairStalledTask(olderThan time.Duration) (*asynq.Task, error) {
	raw, err := json.Marshal(RepairStalledPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRepairStalled, raw, asynq.MaxRetry(1)), nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// UploadWriter creates queued upload records in the primary store.
type UploadWriter interface {
	Store() string
	CreateUpload(ctx context.Context, upload *models.UploadRecord) error
}

// ChangePublisher announces writes to an upload record.
type ChangePublisher interface {
	Publish(ctx context.Context, uploadID uuid.UUID) error
}

type SubmitUploadInput struct {
	FileName   string
	CarrierID  string
	UploadedBy string
	Content    io.Reader
}

// UploadService accepts EDI files and hands them to the extraction engine.
type UploadService struct {
	uploads   UploadWriter
	files     utils.FileStorage
	tasks     TaskEnqueuer
	publisher ChangePublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewUploadService builds the service. publisher may be nil when no push feed is configured.
func NewUploadService(uploads UploadWriter, files utils.FileStorage, tasks TaskEnqueuer, publisher ChangePublisher, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		uploads:   uploads,
		files:     files,
		tasks:     tasks,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit stores the file, records a queued upload and enqueues extraction. A failed enqueue
// leaves the record queued for the stalled-upload repair to pick up.
func (s *UploadService) Submit(ctx context.Context, input SubmitUploadInput) (*LocatedUpload, error) {
	const op = "submit upload"

	carrierID := strings.TrimSpace(input.CarrierID)
	fileName := strings.TrimSpace(input.FileName)
	if carrierID == "" {
		return nil, utils.NewAppError(utils.KindValidation, op, "carrier id is required")
	}
	if fileName == "" || input.Content == nil {
		return nil, utils.NewAppError(utils.KindValidation, op, "file is required")
	}

	id := uuid.New()
	storageName := fmt.Sprintf("%s/%s_%s",
		utils.CleanStringForFilename(carrierID), id.String(), utils.CleanStringForFilename(fileName))
	path, size, err := s.files.UploadFileFromReader(input.Content, storageName)
	if err != nil {
		return nil, utils.NewAppError(utils.KindWriteFailed, op, "failed to store file").WithID(id.String()).Wrap(err)
	}
	if size == 0 {
		s.discardFile(path)
		return nil, utils.NewAppError(utils.KindValidation, op, "file is empty").WithID(id.String())
	}

	upload := &models.UploadRecord{
		ID:               id,
		FileName:         fileName,
		FileSize:         size,
		CarrierID:        carrierID,
		StoragePath:      path,
		ProcessingStatus: models.QueuedProcessing,
		UploadedAt:       s.now().UTC(),
		UploadedBy:       input.UploadedBy,
	}
	if err := s.uploads.CreateUpload(ctx, upload); err != nil {
		s.discardFile(path)
		return nil, err
	}

	s.enqueueExtraction(upload, s.uploads.Store())

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, upload.ID); err != nil {
			s.logger.Warn("Failed to publish upload change", zap.String("upload_id", upload.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("EDI upload queued",
		zap.String("upload_id", upload.ID.String()),
		zap.String("carrier_id", carrierID),
		zap.String("file_name", fileName),
		zap.Int64("file_size", size))
	return &LocatedUpload{Upload: upload, Store: s.uploads.Store()}, nil
}

func (s *UploadService) enqueueExtraction(upload *models.UploadRecord, store string) {
	task, err := NewExtractUploadTask(ExtractUploadPayload{
		UploadID:    upload.ID,
		Store:       store,
		StoragePath: upload.StoragePath,
		CarrierID:   upload.CarrierID,
	})
	if err == nil {
		_, err = s.tasks.Enqueue(task, asynq.TaskID(upload.ID.String()))
	}
	if err != nil {
		s.logger.Error("Failed to enqueue extraction, upload stays queued",
			zap.String("upload_id", upload.ID.String()),
			zap.Error(err))
	}
}

func (s *UploadService) discardFile(path string) {
	if err := s.files.DeleteFile(path); err != nil {
		s.logger.Warn("Failed to remove stored upload file", zap.String("path", path), zap.Error(err))
	}
}
