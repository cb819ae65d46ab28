package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/appointment"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notification sink closed")
)

// AsyncSink hands confirmations to a background goroutine so that booking
// never waits on delivery. Notify never blocks.
type AsyncSink struct {
	next    appointment.NotificationSink
	queue   chan appointment.Confirmation
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncSink(next appointment.NotificationSink, buffer int, logger zerolog.Logger) *AsyncSink {
	s := &AsyncSink{
		next:    next,
		queue:   make(chan appointment.Confirmation, buffer),
		logger:  logger.With().Str("component", "async_notify").Logger(),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) Notify(_ context.Context, c appointment.Confirmation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for c := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Notify(ctx, c); err != nil {
			s.logger.Error().
				Err(err).
				Str("appointment_id", c.AppointmentID.String()).
				Msg("confirmation delivery failed")
		}
		cancel()
	}
}

// Close stops accepting confirmations and waits for queued ones to drain.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
