package repositories

import (
	"context"
	"errors"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadRepository reads upload and result records from one named store. Status columns
// belong to the extraction engine, so the only write is creating a queued upload.
type UploadRepository interface {
	Store() string
	CreateUpload(ctx context.Context, upload *models.UploadRecord) error
	GetUploadByID(ctx context.Context, id uuid.UUID) (*models.UploadRecord, error)
	GetResultByID(ctx context.Context, id uuid.UUID) (*models.ResultRecord, error)
	ListUnfinishedUploads(ctx context.Context, changedBefore time.Time) ([]models.UploadRecord, error)
}

type uploadRepository struct {
	store string
	db    *gorm.DB
}

func NewUploadRepository(store string, db *gorm.DB) UploadRepository {
	return &uploadRepository{store: store, db: db}
}

func (r *uploadRepository) Store() string {
	return r.store
}

func (r *uploadRepository) CreateUpload(ctx context.Context, upload *models.UploadRecord) error {
	if err := r.db.WithContext(ctx).Create(upload).Error; err != nil {
		return utils.NewAppError(utils.KindWriteFailed, "create upload", "failed to record upload").
			WithStore(r.store).Wrap(err)
	}
	return nil
}

func (r *uploadRepository) GetUploadByID(ctx context.Context, id uuid.UUID) (*models.UploadRecord, error) {
	var upload models.UploadRecord
	if err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error; err != nil {
		return nil, r.readError("get upload", "upload not found", id, err)
	}
	return &upload, nil
}

func (r *uploadRepository) GetResultByID(ctx context.Context, id uuid.UUID) (*models.ResultRecord, error) {
	var result models.ResultRecord
	if err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		return nil, r.readError("get result", "result not found", id, err)
	}
	return &result, nil
}

// ListUnfinishedUploads returns queued or processing uploads untouched since changedBefore.
func (r *uploadRepository) ListUnfinishedUploads(ctx context.Context, changedBefore time.Time) ([]models.UploadRecord, error) {
	var uploads []models.UploadRecord
	err := r.db.WithContext(ctx).
		Where("processing_status IN ?", []models.ProcessingStatus{models.QueuedProcessing, models.InProgressProcessing}).
		Where("updated_at < ?", changedBefore).
		Order("uploaded_at ASC").
		Find(&uploads).Error
	if err != nil {
		return nil, utils.NewAppError(utils.KindTransient, "list unfinished uploads", "store unreachable").
			WithStore(r.store).Wrap(err)
	}
	return uploads, nil
}

func (r *uploadRepository) readError(op, missing string, id uuid.UUID, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewAppError(utils.KindNotFound, op, missing).WithID(id.String()).WithStore(r.store)
	}
	return utils.NewAppError(utils.KindTransient, op, "store unreachable").
		WithID(id.String()).WithStore(r.store).Wrap(err)
}
