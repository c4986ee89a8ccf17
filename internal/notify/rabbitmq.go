// Package notify announces finished episodes on a RabbitMQ exchange.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"podcaster/internal/domain"
)

// publishChannel is the part of *amqp.Channel the notifier publishes with.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    publishChannel
	exchange   string
	routingKey string
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*RabbitMQ)

// WithClock overrides the clock stamped on published messages.
func WithClock(now func() time.Time) Option {
	return func(r *RabbitMQ) {
		if now != nil {
			r.now = now
		}
	}
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger, opts ...Option) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	r := &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		now:        time.Now,
		logger:     logger.With("component", "notify"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EpisodeMessage is the completion notice for one episode run.
type EpisodeMessage struct {
	Subject      string         `json:"subject"`
	RunID        string         `json:"run_id"`
	SeriesID     string         `json:"series_id"`
	Title        string         `json:"title"`
	StorageKey   string         `json:"storage_key"`
	AudioSize    int64          `json:"audio_size"`
	DurationSecs int64          `json:"duration_secs"`
	Outcome      domain.Outcome `json:"outcome"`
	EpisodeID    string         `json:"episode_id,omitempty"`
	PublishURL   string         `json:"publish_url,omitempty"`
	PublishError string         `json:"publish_error,omitempty"`
	GeneratedAt  time.Time      `json:"generated_at"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewEpisodeMessage summarizes a successful run.
func NewEpisodeMessage(result domain.Result, now time.Time) (EpisodeMessage, error) {
	ep := result.Episode
	if ep == nil {
		return EpisodeMessage{}, errors.New("result carries no episode")
	}

	msg := EpisodeMessage{
		Subject:      "New Episode Generated: " + ep.Title,
		RunID:        ep.RunID,
		SeriesID:     ep.SeriesID,
		Title:        ep.Title,
		StorageKey:   ep.StorageKey,
		AudioSize:    ep.AudioSize,
		DurationSecs: int64(ep.Duration.Seconds()),
		Outcome:      result.Outcome,
		GeneratedAt:  ep.GeneratedAt,
		Timestamp:    now.UTC(),
	}
	if ep.Published() {
		publishedAt := ep.Publication.PublishedAt
		msg.EpisodeID = ep.Publication.EpisodeID
		msg.PublishURL = ep.Publication.URL
		msg.PublishedAt = &publishedAt
	}
	if result.Reason != nil {
		msg.PublishError = result.Reason.Error()
	}
	return msg, nil
}

// Notify publishes the completion notice for result.
func (r *RabbitMQ) Notify(ctx context.Context, result domain.Result) error {
	now := r.now()
	msg, err := NewEpisodeMessage(result, now)
	if err != nil {
		return domain.Wrap(domain.ErrNotification, "build message", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return domain.Wrap(domain.ErrNotification, "marshal message", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         string(result.Outcome),
			Headers:      amqp.Table{"subject": msg.Subject},
			Body:         body,
			Timestamp:    now,
		},
	)
	if err != nil {
		return domain.Wrap(domain.ErrNotification, "publish message", err)
	}

	r.logger.Debug("published notification",
		"series_id", msg.SeriesID,
		"outcome", msg.Outcome,
	)

	return nil
}

// Ping checks that the exchange still exists.
func (r *RabbitMQ) Ping(_ context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return domain.Wrap(domain.ErrNotification, "connection closed", nil)
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return domain.Wrap(domain.ErrNotification, "open channel", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclarePassive(r.exchange, "direct", true, false, false, false, nil); err != nil {
		return domain.Wrap(domain.ErrNotification, "exchange "+r.exchange, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
