package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"tagmirror/internal/domain"
)

const reconnectDelay = 5 * time.Second

// StatusSink persists statuses delivered over the streaming connection.
type StatusSink interface {
	PersistStatuses(ctx context.Context, statuses []*domain.Status) error
}

// HashtagLister supplies the hashtags to subscribe to.
type HashtagLister interface {
	ListHashtags(ctx context.Context) ([]string, error)
}

// StreamListener subscribes to the instance's streaming API for every
// approved hashtag and persists statuses as they arrive. It complements the
// polling updater: live delivery between cycles, with the watermark-driven
// poller covering anything missed while disconnected.
type StreamListener struct {
	url      string
	sink     StatusSink
	hashtags HashtagLister
	logger   *slog.Logger
}

// NewStreamListener creates a listener for the streaming endpoint at
// streamURL (e.g. wss://mastodon.social/api/v1/streaming).
func NewStreamListener(streamURL string, sink StatusSink, hashtags HashtagLister, logger *slog.Logger) *StreamListener {
	return &StreamListener{
		url:      streamURL,
		sink:     sink,
		hashtags: hashtags,
		logger:   logger,
	}
}

// Name implements the worker interface.
func (l *StreamListener) Name() string { return "stream-listener" }

// Run connects and processes events until the context is cancelled,
// reconnecting with a fixed backoff on transient errors.
func (l *StreamListener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("streaming connection error, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// streamEvent is the raw envelope from the streaming API. The payload is a
// JSON document encoded as a string.
type streamEvent struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// subscribeRequest is the client-to-server subscription message.
type subscribeRequest struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Tag    string `json:"tag"`
}

func (l *StreamListener) listen(ctx context.Context) error {
	tags, err := l.hashtags.ListHashtags(ctx)
	if err != nil {
		return fmt.Errorf("list hashtags: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial streaming endpoint: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for _, tag := range tags {
		sub := subscribeRequest{Type: "subscribe", Stream: "hashtag", Tag: tag}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe to %s: %w", tag, err)
		}
	}
	l.logger.Info("subscribed to hashtag streams", "tags", len(tags))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}

		var event streamEvent
		if err := json.Unmarshal(message, &event); err != nil {
			l.logger.Error("failed to parse stream event", "error", err)
			continue
		}
		if event.Event != "update" {
			continue
		}

		status, err := domain.DecodeStatus([]byte(event.Payload))
		if err != nil {
			l.logger.Error("failed to decode streamed status", "error", err)
			continue
		}

		if err := l.sink.PersistStatuses(ctx, []*domain.Status{status}); err != nil {
			l.logger.Error("failed to persist streamed status", "id", status.ID, "error", err)
			continue
		}
		l.logger.Debug("persisted streamed status", "id", status.ID)
	}
}
