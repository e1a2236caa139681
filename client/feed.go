package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"gigbook/apperror"
	"gigbook/models"
	"gigbook/services/realtime"

	"go.uber.org/zap"
)

const maxEventSize = 1 << 20

// Feed keeps a local view of the caller's bookings current from the server's
// event stream.
type Feed struct {
	client *HttpClient
	index  *realtime.Index[models.Booking]
	logger *zap.Logger

	// OnChange, when set, runs after each applied event.
	OnChange func(models.BookingEvent)
	// Backoff is the pause before reconnecting after the stream drops.
	Backoff time.Duration
}

func NewFeed(client *HttpClient, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		client:  client,
		index:   realtime.NewBookingIndex(),
		logger:  logger,
		Backoff: 2 * time.Second,
	}
}

func (f *Feed) Index() *realtime.Index[models.Booking] {
	return f.index
}

// Run follows the stream until ctx is done, reconnecting when it drops.
// It gives up on auth errors that survive a refresh.
func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if apperror.IsAuth(err) {
			return err
		}
		f.logger.Warn("booking feed dropped, reconnecting", zap.Error(err), zap.Duration("backoff", f.Backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.Backoff):
		}
	}
}

func (f *Feed) follow(ctx context.Context) error {
	body, err := f.client.Stream(ctx, "/api/bookings/stream")
	if err != nil {
		return err
	}
	defer body.Close()

	events := make(chan models.BookingEvent)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		readErr <- readEvents(ctx, body, events)
	}()
	f.index.Follow(ctx, events, f.OnChange)
	// Unblocks the reader when ctx ended first.
	body.Close()
	return <-readErr
}

type wireEvent struct {
	EventType models.ChangeType `json:"eventType"`
	Booking   models.Booking    `json:"booking"`
}

// readEvents parses "booking" events until the stream ends. Other event
// names, such as heartbeats, are skipped.
func readEvents(ctx context.Context, r io.Reader, out chan<- models.BookingEvent) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var name string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == "booking" && data.Len() > 0 {
				var ev wireEvent
				if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
					return err
				}
				select {
				case out <- models.BookingEvent{Type: ev.EventType, Entity: ev.Booking}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("booking stream closed by server")
}
