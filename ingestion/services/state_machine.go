package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/metrics"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Signal string

const (
	SignalQueued     Signal = "queued"
	SignalProcessing Signal = "processing"
	SignalCompleted  Signal = "completed"
	SignalFailed     Signal = "failed"
	// SignalStalled means no transition for the configured stall window. It is not terminal.
	SignalStalled Signal = "stalled"
)

// Event is one delivery to an observer.
type Event struct {
	Signal      Signal                   `json:"signal"`
	Upload      *models.UploadRecord     `json:"upload"`
	Store       string                   `json:"store"`
	Result      *models.ResultRecord     `json:"result,omitempty"`
	ResultStore string                   `json:"result_store,omitempty"`
	LineItems   []models.ExtractedRecord `json:"line_items,omitempty"`
	Err         error                    `json:"-"`
	ObservedAt  time.Time                `json:"observed_at"`
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Signal == SignalCompleted || e.Signal == SignalFailed
}

// ErrorMessage is the human-readable failure, or "".
func (e Event) ErrorMessage() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// ExtractionFailedError carries the extraction engine's own error text for a failed upload.
type ExtractionFailedError struct {
	UploadID string
	Message  string
}

func (e *ExtractionFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("extraction failed for upload %s", e.UploadID)
	}
	return e.Message
}

// StateMachine observes upload records and reacts to each processing status transition.
type StateMachine struct {
	chain      *StoreChain
	feed       ChangeFeed
	notifier   utils.Notifier
	stallAfter time.Duration
	logger     *zap.Logger
	metrics    *metrics.Registry
	now        func() time.Time

	active int64
}

// NewStateMachine builds a state machine. A zero stallAfter disables stall signals.
func NewStateMachine(chain *StoreChain, feed ChangeFeed, notifier utils.Notifier, stallAfter time.Duration, logger *zap.Logger, m *metrics.Registry) *StateMachine {
	if notifier == nil {
		notifier = utils.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{
		chain:      chain,
		feed:       feed,
		notifier:   notifier,
		stallAfter: stallAfter,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// ActiveSubscriptions is the number of observation loops still running.
func (sm *StateMachine) ActiveSubscriptions() int {
	return int(atomic.LoadInt64(&sm.active))
}

// Observe subscribes to changes, reads the upload (falling back across stores), delivers its
// current state and then one event per later status transition until a terminal state, ctx
// ends or Cancel is called. Events for one subscription are delivered serially from a single
// goroutine.
func (sm *StateMachine) Observe(ctx context.Context, uploadID uuid.UUID, onEvent func(Event)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	// Subscribe before the first read so a write landing in between still ticks.
	ticks, err := sm.feed.Subscribe(subCtx, uploadID)
	if err != nil {
		cancel()
		return nil, err
	}

	located, err := sm.chain.FindUpload(ctx, uploadID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		machine:  sm,
		uploadID: uploadID,
		onEvent:  onEvent,
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	atomic.AddInt64(&sm.active, 1)
	go sub.run(ticks, located)
	return sub, nil
}

// Subscription is one active observation.
type Subscription struct {
	machine  *StateMachine
	uploadID uuid.UUID
	onEvent  func(Event)
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu             sync.Mutex
	cancelled      bool
	inCallback     bool
	lastStatus     models.ProcessingStatus
	lastVersion    int64
	seen           bool
	lastTransition time.Time
	stallReported  bool
	lastUpload     *models.UploadRecord
	lastStore      string
}

// Cancel stops the subscription and waits for the observation loop to exit. It is idempotent.
// Called while a callback is running (from inside it or from another goroutine) it returns
// without waiting; that callback completes and no later one starts.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	running := s.inCallback
	s.mu.Unlock()
	s.cancel()
	if !running {
		<-s.done
	}
}

// Done is closed when the observation loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) UploadID() uuid.UUID {
	return s.uploadID
}

// SinceLastTransition is the time since the record last changed processing status.
func (s *Subscription) SinceLastTransition() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTransition.IsZero() {
		return 0
	}
	return s.machine.now().Sub(s.lastTransition)
}

func (s *Subscription) run(ticks <-chan struct{}, initial *LocatedUpload) {
	defer close(s.done)
	defer atomic.AddInt64(&s.machine.active, -1)
	defer s.cancel()

	if s.handle(initial) {
		return
	}

	var stallTimer *time.Timer
	var stallC <-chan time.Time
	armStall := func() {
		if s.machine.stallAfter <= 0 {
			return
		}
		if stallTimer != nil {
			stallTimer.Stop()
		}
		wait := s.machine.stallAfter - s.SinceLastTransition()
		if wait < 0 {
			wait = 0
		}
		stallTimer = time.NewTimer(wait)
		stallC = stallTimer.C
	}
	defer func() {
		if stallTimer != nil {
			stallTimer.Stop()
		}
	}()
	armStall()

	for {
		select {
		case <-s.ctx.Done():
			return

		case _, ok := <-ticks:
			if !ok {
				return
			}
			located, err := s.machine.chain.FindUpload(s.ctx, s.uploadID)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.machine.logger.Warn("Failed to re-read upload after change notification",
					zap.String("upload_id", s.uploadID.String()),
					zap.Error(err))
				continue
			}
			previous := s.currentStatus()
			if s.handle(located) {
				return
			}
			if s.currentStatus() != previous {
				armStall()
			}

		case <-stallC:
			stallC = nil
			s.reportStall()
		}
	}
}

func (s *Subscription) currentStatus() models.ProcessingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// handle processes one read of the record and reports whether the subscription is finished.
func (s *Subscription) handle(located *LocatedUpload) bool {
	upload := located.Upload

	s.mu.Lock()
	if s.seen && upload.Version < s.lastVersion {
		s.mu.Unlock()
		return false
	}
	if s.seen && upload.ProcessingStatus == s.lastStatus {
		s.lastVersion = upload.Version
		s.mu.Unlock()
		return false
	}
	s.seen = true
	s.lastStatus = upload.ProcessingStatus
	s.lastVersion = upload.Version
	s.lastTransition = upload.LastTransitionAt()
	s.stallReported = false
	s.lastUpload = upload
	s.lastStore = located.Store
	s.mu.Unlock()

	event := Event{
		Upload:     upload,
		Store:      located.Store,
		ObservedAt: s.machine.now(),
	}

	switch upload.ProcessingStatus {
	case models.QueuedProcessing:
		event.Signal = SignalQueued
	case models.InProgressProcessing:
		event.Signal = SignalProcessing
	case models.FailedProcessing:
		event.Signal = SignalFailed
		message := ""
		if upload.Error != nil {
			message = *upload.Error
		}
		event.Err = &ExtractionFailedError{UploadID: upload.ID.String(), Message: message}
	case models.CompletedProcessing:
		event.Signal = SignalCompleted
		s.attachResult(&event, located)
	default:
		s.machine.logger.Warn("Ignoring unknown processing status",
			zap.String("upload_id", upload.ID.String()),
			zap.String("status", string(upload.ProcessingStatus)))
		return false
	}

	s.deliver(event)
	if event.Terminal() {
		s.notifyTerminal(event)
		return true
	}
	return false
}

func (s *Subscription) attachResult(event *Event, located *LocatedUpload) {
	upload := located.Upload
	if upload.ResultID == nil {
		event.Err = utils.NewAppError(utils.KindDataIntegrity, "load upload result", "completed upload has no result id").
			WithID(upload.ID.String()).WithStore(located.Store)
		return
	}

	result, err := s.machine.chain.FindResult(s.ctx, located.Store, *upload.ResultID)
	if err != nil {
		event.Err = err
		s.machine.logger.Error("Completed upload result unavailable",
			zap.String("upload_id", upload.ID.String()),
			zap.String("result_id", upload.ResultID.String()),
			zap.String("store", located.Store),
			zap.Error(err))
		return
	}
	event.Result = result.Result
	event.ResultStore = result.Store
	event.LineItems = result.Result.LineItems()
}

func (s *Subscription) reportStall() {
	s.mu.Lock()
	if s.stallReported || s.lastStatus.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.stallReported = true
	status := s.lastStatus
	upload, store := s.lastUpload, s.lastStore
	s.mu.Unlock()

	s.machine.logger.Warn("Upload stalled",
		zap.String("upload_id", s.uploadID.String()),
		zap.String("status", string(status)),
		zap.Duration("since_last_transition", s.SinceLastTransition()))

	s.deliver(Event{
		Signal:     SignalStalled,
		Upload:     upload,
		Store:      store,
		ObservedAt: s.machine.now(),
	})
}

// deliver runs the callback unless the subscription was cancelled first. The cancel check
// and marking the callback as running happen under one lock.
func (s *Subscription) deliver(event Event) {
	s.mu.Lock()
	if s.cancelled || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.inCallback = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inCallback = false
		s.mu.Unlock()
	}()
	s.machine.metrics.Signal(string(event.Signal))
	s.onEvent(event)
}

func (s *Subscription) notifyTerminal(event Event) {
	n := utils.Notification{
		Topic:     s.uploadID.String(),
		Timestamp: event.ObservedAt,
	}
	switch {
	case event.Err != nil:
		n.Level = utils.NotifyError
		n.Message = fmt.Sprintf("EDI upload %s: %s", event.Upload.FileName, event.Err.Error())
	default:
		n.Level = utils.NotifySuccess
		n.Message = fmt.Sprintf("EDI upload %s processed: %d records extracted", event.Upload.FileName, len(event.LineItems))
	}
	s.machine.notifier.Notify(n)
}
