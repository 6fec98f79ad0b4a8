package notify

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"dvfmarket/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Notification is one outbound payload addressed to an actor.
type Notification struct {
	ActorID string
	Payload models.ImportNotification
}

// Queue is the in-memory outbox between the import orchestrator and the
// delivery channels. Delivery is at-most-once; a full queue drops.
type Queue struct {
	items    chan Notification
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func(Notification) error
}

// NewQueue creates a new notification queue with the specified buffer size
func NewQueue(bufferSize int, logger *logrus.Logger) *Queue {
	return &Queue{
		items:    make(chan Notification, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func(Notification) error, 0),
	}
}

// Push adds a notification to the queue
func (q *Queue) Push(n Notification) error {
	// The send happens under the read lock so it cannot race with Close,
	// which closes the channel under the write lock.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	// Non-blocking send to prevent deadlocks
	select {
	case q.items <- n:
		q.logger.WithField("actor_id", n.ActorID).Debug("Pushed notification to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each notification
func (q *Queue) Subscribe(handler func(Notification) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue
func (q *Queue) Start() {
	go q.process()
}

// process handles the queue processing loop
func (q *Queue) process() {
	for {
		select {
		case <-q.done:
			return
		case n, ok := <-q.items:
			if !ok {
				return
			}
			q.dispatch(n)
		}
	}
}

// dispatch sends the notification to all subscribed handlers
func (q *Queue) dispatch(n Notification) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(n); err != nil {
			q.logger.WithError(err).Error("Handler failed to deliver notification")
		}
	}
}

// Close stops the queue and prevents new items from being added
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	close(q.items)
	return nil
}

// Len returns the current number of notifications in the queue
func (q *Queue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
