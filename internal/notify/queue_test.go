package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"dvfmarket/server/internal/models"
)

func notification(actorID string) Notification {
	return Notification{
		ActorID: actorID,
		Payload: models.ImportNotification{
			Status:     models.ImportCompleted,
			Year:       "2024",
			Department: "75",
		},
	}
}

func TestNewQueue(t *testing.T) {
	logger := logrus.New()
	q := NewQueue(10, logger)
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())
}

func TestQueue_Push(t *testing.T) {
	logger := logrus.New()
	q := NewQueue(2, logger)

	// Test successful push
	err := q.Push(notification("actor-1"))
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// Test queue full
	_ = q.Push(notification("actor-2"))
	err = q.Push(notification("actor-3"))
	assert.Equal(t, ErrQueueFull, err)

	// Test closed queue
	q.Close()
	err = q.Push(notification("actor-4"))
	assert.Equal(t, ErrQueueClosed, err)
}

func TestQueue_Subscribe(t *testing.T) {
	logger := logrus.New()
	q := NewQueue(10, logger)

	var delivered []Notification
	var mu sync.Mutex

	q.Subscribe(func(n Notification) error {
		mu.Lock()
		delivered = append(delivered, n)
		mu.Unlock()
		return nil
	})

	q.Start()

	err := q.Push(notification("actor-1"))
	assert.NoError(t, err)

	// Wait for processing
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, len(delivered))
	assert.Equal(t, "actor-1", delivered[0].ActorID)
	assert.Equal(t, models.ImportCompleted, delivered[0].Payload.Status)
	mu.Unlock()
}

func TestQueue_Close(t *testing.T) {
	logger := logrus.New()
	q := NewQueue(10, logger)

	// Test first close
	err := q.Close()
	assert.NoError(t, err)
	assert.True(t, q.IsClosed())

	// Test second close (should be no-op)
	err = q.Close()
	assert.NoError(t, err)
}

func TestQueue_ConcurrentPushAndClose(t *testing.T) {
	logger := logrus.New()
	q := NewQueue(4, logger)

	// Pushers racing a Close must settle on ErrQueueClosed, never panic
	// with a send on the closed channel.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := q.Push(notification("actor-1")); err == ErrQueueClosed {
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	assert.True(t, q.IsClosed())
}

func TestHub_NotifyNeverFails(t *testing.T) {
	logger := logrus.New()
	h := NewHub(1, logger)
	defer h.Close()

	// No connected client and a tiny buffer: Notify must not block or
	// panic even when payloads are dropped.
	for i := 0; i < 10; i++ {
		h.Notify("actor-1", models.ImportNotification{
			Status:     models.ImportFailed,
			Year:       "2024",
			Department: "75",
			Error:      "download failed",
		})
	}
}
