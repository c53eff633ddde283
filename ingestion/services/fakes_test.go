package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type memoryStore struct {
	name string

	mu          sync.Mutex
	uploads     map[uuid.UUID]models.UploadRecord
	results     map[uuid.UUID]models.ResultRecord
	readErr     error
	uploadReads int
	resultReads int
}

func newMemoryStore(name string) *memoryStore {
	return &memoryStore{
		name:    name,
		uploads: make(map[uuid.UUID]models.UploadRecord),
		results: make(map[uuid.UUID]models.ResultRecord),
	}
}

func (m *memoryStore) Store() string { return m.name }

func (m *memoryStore) put(upload models.UploadRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[upload.ID] = upload
}

func (m *memoryStore) putResult(result models.ResultRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ID] = result
}

func (m *memoryStore) GetUploadByID(ctx context.Context, id uuid.UUID) (*models.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadReads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	upload, ok := m.uploads[id]
	if !ok {
		return nil, utils.NewAppError(utils.KindNotFound, "get upload", "upload not found").WithID(id.String()).WithStore(m.name)
	}
	return &upload, nil
}

func (m *memoryStore) GetResultByID(ctx context.Context, id uuid.UUID) (*models.ResultRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resultReads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	result, ok := m.results[id]
	if !ok {
		return nil, utils.NewAppError(utils.KindNotFound, "get result", "result not found").WithID(id.String()).WithStore(m.name)
	}
	return &result, nil
}

func (m *memoryStore) ListUnfinishedUploads(ctx context.Context, changedBefore time.Time) ([]models.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []models.UploadRecord
	for _, upload := range m.uploads {
		if !upload.ProcessingStatus.IsTerminal() && upload.LastTransitionAt().Before(changedBefore) {
			out = append(out, upload)
		}
	}
	return out, nil
}

func (m *memoryStore) reads() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadReads, m.resultReads
}

// manualFeed ticks only when the test says so.
type manualFeed struct {
	in chan struct{}
}

func newManualFeed() *manualFeed {
	return &manualFeed{in: make(chan struct{})}
}

func (f *manualFeed) Subscribe(ctx context.Context, uploadID uuid.UUID) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.in:
				coalesce(out)
			}
		}
	}()
	return out, nil
}

// tick reports whether a live subscription accepted the tick.
func (f *manualFeed) tick() bool {
	select {
	case f.in <- struct{}{}:
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 32)}
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) next(timeout time.Duration) (Event, bool) {
	select {
	case e := <-r.ch:
		return e, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []utils.Notification
}

func (n *capturingNotifier) Notify(msg utils.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *capturingNotifier) all() []utils.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]utils.Notification(nil), n.sent...)
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
	errs  map[string]error
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var payload ExtractUploadPayload
	if task.Type() == TypeExtractUpload && json.Unmarshal(task.Payload(), &payload) == nil {
		if err, ok := f.errs[payload.UploadID.String()]; ok {
			return nil, err
		}
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload(), Queue: "default"}, nil
}

func (f *fakeEnqueuer) enqueued() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

type memoryFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{files: make(map[string][]byte)}
}

func (m *memoryFiles) UploadFileFromReader(src io.Reader, fileName string) (string, int64, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return "", 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileName] = raw
	return fileName, int64(len(raw)), nil
}

func (m *memoryFiles) DownloadFile(filePath string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.files[filePath]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *memoryFiles) DeleteFile(filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filePath)
	m.deleted = append(m.deleted, filePath)
	return nil
}

func (m *memoryFiles) FileExists(filePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filePath]
	return ok, nil
}

// writableStore adds CreateUpload to memoryStore.
type writableStore struct {
	*memoryStore
	createErr error
}

func (w *writableStore) CreateUpload(ctx context.Context, upload *models.UploadRecord) error {
	if w.createErr != nil {
		return w.createErr
	}
	w.put(*upload)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
}

func (p *recordingPublisher) Publish(ctx context.Context, uploadID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, uploadID)
	return nil
}
