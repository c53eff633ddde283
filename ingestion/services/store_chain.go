package services

import (
	"context"
	"strings"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/metrics"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadStore is one named backing store for upload and result records.
type UploadStore interface {
	Store() string
	GetUploadByID(ctx context.Context, id uuid.UUID) (*models.UploadRecord, error)
	GetResultByID(ctx context.Context, id uuid.UUID) (*models.ResultRecord, error)
	ListUnfinishedUploads(ctx context.Context, changedBefore time.Time) ([]models.UploadRecord, error)
}

// LocatedUpload is an upload together with the store it was read from.
type LocatedUpload struct {
	Upload *models.UploadRecord `json:"upload"`
	Store  string               `json:"store"`
}

type LocatedResult struct {
	Result *models.ResultRecord `json:"result"`
	Store  string               `json:"store"`
}

// StoreChain tries named stores in order. Each store is asked at most once per read.
type StoreChain struct {
	stores  []UploadStore
	logger  *zap.Logger
	metrics *metrics.Registry
}

func NewStoreChain(logger *zap.Logger, m *metrics.Registry, stores ...UploadStore) *StoreChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreChain{stores: stores, logger: logger, metrics: m}
}

func (c *StoreChain) Stores() []UploadStore {
	return c.stores
}

// FindUpload returns the upload from the first store that has it.
func (c *StoreChain) FindUpload(ctx context.Context, id uuid.UUID) (*LocatedUpload, error) {
	const op = "find upload"

	var tried []string
	var transient error
	for i, store := range c.stores {
		upload, err := store.GetUploadByID(ctx, id)
		if err == nil {
			if i > 0 {
				c.metrics.Fallback("upload")
				c.logger.Debug("Upload served by fallback store",
					zap.String("upload_id", id.String()),
					zap.String("store", store.Store()),
					zap.Strings("missed", tried))
			}
			return &LocatedUpload{Upload: upload, Store: store.Store()}, nil
		}
		tried = append(tried, store.Store())
		if utils.KindOf(err) != utils.KindNotFound {
			transient = err
			c.logger.Warn("Upload store read failed, trying next store",
				zap.String("upload_id", id.String()),
				zap.String("store", store.Store()),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if transient != nil {
		return nil, utils.NewAppError(utils.KindTransient, op, "upload stores unreachable").
			WithID(id.String()).WithStore(strings.Join(tried, ",")).Wrap(transient)
	}
	return nil, utils.NewAppError(utils.KindNotFound, op, "upload not found").
		WithID(id.String()).WithStore(strings.Join(tried, ","))
}

// FindResult reads the result from the origin store first, then the remaining stores.
// A result missing everywhere is a data integrity fault.
func (c *StoreChain) FindResult(ctx context.Context, origin string, resultID uuid.UUID) (*LocatedResult, error) {
	const op = "find result"

	var tried []string
	var transient error
	for i, store := range c.affinityOrder(origin) {
		result, err := store.GetResultByID(ctx, resultID)
		if err == nil {
			if i > 0 {
				c.metrics.Fallback("result")
				c.logger.Warn("Result not in origin store, served by fallback",
					zap.String("result_id", resultID.String()),
					zap.String("origin", origin),
					zap.String("store", store.Store()))
			}
			return &LocatedResult{Result: result, Store: store.Store()}, nil
		}
		tried = append(tried, store.Store())
		if utils.KindOf(err) != utils.KindNotFound {
			transient = err
			c.logger.Warn("Result store read failed, trying next store",
				zap.String("result_id", resultID.String()),
				zap.String("store", store.Store()),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if transient != nil {
		return nil, utils.NewAppError(utils.KindTransient, op, "result stores unreachable").
			WithID(resultID.String()).WithStore(strings.Join(tried, ",")).Wrap(transient)
	}
	return nil, utils.NewAppError(utils.KindDataIntegrity, op, "result missing").
		WithID(resultID.String()).WithStore(strings.Join(tried, ","))
}

func (c *StoreChain) affinityOrder(origin string) []UploadStore {
	ordered := make([]UploadStore, 0, len(c.stores))
	for _, store := range c.stores {
		if store.Store() == origin {
			ordered = append(ordered, store)
		}
	}
	for _, store := range c.stores {
		if store.Store() != origin {
			ordered = append(ordered, store)
		}
	}
	return ordered
}
