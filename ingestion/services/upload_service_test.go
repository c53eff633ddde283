package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploadFixture() (*UploadService, *writableStore, *memoryFiles, *fakeEnqueuer, *recordingPublisher) {
	store := &writableStore{memoryStore: newMemoryStore("primary")}
	files := newMemoryFiles()
	tasks := &fakeEnqueuer{}
	publisher := &recordingPublisher{}
	return NewUploadService(store, files, tasks, publisher, nil), store, files, tasks, publisher
}

func TestSubmitCreatesQueuedUploadAndEnqueuesExtraction(t *testing.T) {
	svc, store, files, tasks, publisher := newUploadFixture()

	located, err := svc.Submit(context.Background(), SubmitUploadInput{
		FileName:   "April Invoices.edi",
		CarrierID:  "fedex",
		UploadedBy: "ops@example.com",
		Content:    strings.NewReader("ISA*00*..."),
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", located.Store)
	assert.Equal(t, models.QueuedProcessing, located.Upload.ProcessingStatus)
	assert.Equal(t, int64(10), located.Upload.FileSize)
	assert.True(t, strings.HasPrefix(located.Upload.StoragePath, "fedex/"))
	assert.True(t, strings.HasSuffix(located.Upload.StoragePath, "_April_Invoices.edi"))

	stored, err := store.GetUploadByID(context.Background(), located.Upload.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", stored.UploadedBy)

	exists, _ := files.FileExists(located.Upload.StoragePath)
	assert.True(t, exists)

	enqueued := tasks.enqueued()
	require.Len(t, enqueued, 1)
	assert.Equal(t, TypeExtractUpload, enqueued[0].Type())
	var payload ExtractUploadPayload
	require.NoError(t, json.Unmarshal(enqueued[0].Payload(), &payload))
	assert.Equal(t, located.Upload.ID, payload.UploadID)
	assert.Equal(t, "primary", payload.Store)

	assert.Equal(t, located.Upload.ID, publisher.published[0])
}

func TestSubmitValidatesBeforeWriting(t *testing.T) {
	svc, store, files, tasks, _ := newUploadFixture()

	_, err := svc.Submit(context.Background(), SubmitUploadInput{FileName: "a.edi", Content: strings.NewReader("x")})
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))

	_, err = svc.Submit(context.Background(), SubmitUploadInput{CarrierID: "ups", Content: strings.NewReader("x")})
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))

	assert.Empty(t, store.uploads)
	assert.Empty(t, files.files)
	assert.Empty(t, tasks.enqueued())
}

func TestSubmitRejectsEmptyFile(t *testing.T) {
	svc, store, files, _, _ := newUploadFixture()

	_, err := svc.Submit(context.Background(), SubmitUploadInput{FileName: "a.edi", CarrierID: "ups", Content: strings.NewReader("")})
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
	assert.Empty(t, store.uploads)
	assert.Len(t, files.deleted, 1)
}

func TestSubmitRemovesFileWhenRecordFails(t *testing.T) {
	svc, store, files, tasks, _ := newUploadFixture()
	store.createErr = utils.NewAppError(utils.KindWriteFailed, "create upload", "failed to record upload")

	_, err := svc.Submit(context.Background(), SubmitUploadInput{FileName: "a.edi", CarrierID: "ups", Content: strings.NewReader("data")})
	assert.Equal(t, utils.KindWriteFailed, utils.KindOf(err))
	assert.Empty(t, files.files)
	assert.Empty(t, tasks.enqueued())
}

func TestSubmitSurvivesEnqueueFailure(t *testing.T) {
	svc, store, _, tasks, _ := newUploadFixture()
	tasks.err = errors.New("redis: connection refused")

	located, err := svc.Submit(context.Background(), SubmitUploadInput{FileName: "a.edi", CarrierID: "ups", Content: strings.NewReader("data")})
	require.NoError(t, err)

	stored, err := store.GetUploadByID(context.Background(), located.Upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuedProcessing, stored.ProcessingStatus)
}
