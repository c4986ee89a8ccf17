package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcaster/internal/domain"
)

type capturedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []capturedPublish
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, capturedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestNotifier(ch *fakeChannel, now time.Time) *RabbitMQ {
	r := &RabbitMQ{
		channel:    ch,
		exchange:   "podcaster",
		routingKey: "episodes",
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	WithClock(func() time.Time { return now })(r)
	return r
}

func TestRabbitMQ_NotifyStampsClock(t *testing.T) {
	now := time.Date(2025, 9, 1, 6, 30, 0, 0, time.UTC)
	ch := &fakeChannel{}
	n := newTestNotifier(ch, now)

	ep := &domain.EpisodeMetadata{RunID: "run-1", SeriesID: "tech_voice", Title: "Gadgets", GeneratedAt: now.Add(-time.Minute)}
	require.NoError(t, n.Notify(context.Background(), domain.GeneratedUnpublished(ep, nil)))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "podcaster", got.exchange)
	assert.Equal(t, "episodes", got.key)
	assert.Equal(t, now, got.msg.Timestamp)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)
	assert.Equal(t, "generated_unpublished", got.msg.Type)
	assert.Equal(t, "New Episode Generated: Gadgets", got.msg.Headers["subject"])

	var body EpisodeMessage
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, now, body.Timestamp)
	assert.Equal(t, "run-1", body.RunID)
}

func TestRabbitMQ_NotifyErrors(t *testing.T) {
	now := time.Date(2025, 9, 1, 6, 30, 0, 0, time.UTC)

	n := newTestNotifier(&fakeChannel{}, now)
	err := n.Notify(context.Background(), domain.Failed(errors.New("boom")))
	assert.ErrorIs(t, err, domain.ErrNotification)

	n = newTestNotifier(&fakeChannel{err: errors.New("channel closed")}, now)
	err = n.Notify(context.Background(), domain.GeneratedUnpublished(&domain.EpisodeMetadata{Title: "x"}, nil))
	assert.ErrorIs(t, err, domain.ErrNotification)
	assert.ErrorContains(t, err, "channel closed")
}

func TestWithClockIgnoresNil(t *testing.T) {
	r := &RabbitMQ{now: time.Now}
	WithClock(nil)(r)
	assert.NotNil(t, r.now)
}
