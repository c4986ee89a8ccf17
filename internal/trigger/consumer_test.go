package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	bodies [][]byte
	status int
}

func (h *recordingHandler) DispatchJSON(_ context.Context, data []byte) Response {
	h.bodies = append(h.bodies, data)
	return Response{StatusCode: h.status}
}

type fakeAcknowledger struct {
	acked  []uint64
	nacked []uint64
	ackErr error
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return a.ackErr
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, _ bool) error {
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	a.nacked = append(a.nacked, tag)
	return nil
}

func TestConsumer_HandleAlwaysAcks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ackErr error
	}{
		{name: "processed", status: http.StatusOK},
		{name: "failed run", status: http.StatusInternalServerError},
		{name: "bad event", status: http.StatusBadRequest},
		{name: "ack error", status: http.StatusOK, ackErr: errors.New("channel closed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &recordingHandler{status: tt.status}
			ack := &fakeAcknowledger{ackErr: tt.ackErr}
			c := &Consumer{
				handler: handler,
				logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			}

			c.handle(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  7,
				Body:         []byte(`{"series_id":"a"}`),
			})

			assert.Equal(t, [][]byte{[]byte(`{"series_id":"a"}`)}, handler.bodies)
			assert.Equal(t, []uint64{7}, ack.acked)
			assert.Empty(t, ack.nacked)
		})
	}
}
