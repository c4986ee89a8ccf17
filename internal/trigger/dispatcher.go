package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"podcaster/internal/domain"
	"podcaster/internal/pipeline"
)

type Orchestrator interface {
	GenerateEpisode(ctx context.Context, req pipeline.Request) (domain.Result, error)
	GenerateBatch(ctx context.Context, seriesIDs []string, prompts map[string]string, autoPublish bool) []domain.Result
	GenerateScheduled(ctx context.Context) []domain.Result
	SeriesStatus(ctx context.Context) []domain.SeriesStatus
	ValidateConfiguration(ctx context.Context) bool
	SeriesIDs() []string
}

// Dispatcher routes events to the orchestrator one at a time.
type Dispatcher struct {
	mu               sync.Mutex
	orchestrator     Orchestrator
	fallbackSeriesID string
	now              func() time.Time
	logger           *slog.Logger
}

func NewDispatcher(o Orchestrator, fallbackSeriesID string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		orchestrator:     o,
		fallbackSeriesID: fallbackSeriesID,
		now:              time.Now,
		logger:           logger.With("component", "trigger"),
	}
}

// DispatchJSON parses data and dispatches it. Malformed JSON yields 400.
func (d *Dispatcher) DispatchJSON(ctx context.Context, data []byte) Response {
	ev, err := ParseEvent(data)
	if err != nil {
		d.logger.Warn("rejected event", "error", err)
		return d.errorResponse(http.StatusBadRequest, "Invalid event", "invalid_event", err.Error())
	}
	return d.Dispatch(ctx, ev)
}

// Dispatch handles one event. It never panics and never returns an error:
// failures are reported through the response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (resp Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while dispatching event", "panic", r)
			resp = d.errorResponse(http.StatusInternalServerError, "Internal server error", "internal", fmt.Sprint(r))
		}
	}()

	kind := ev.Kind()
	d.logger.Info("dispatching event", "kind", kind)

	if kind == KindAction {
		return d.action(ctx, ev.Action)
	}

	if !d.orchestrator.ValidateConfiguration(ctx) {
		return d.errorResponse(http.StatusInternalServerError,
			"Configuration validation failed", "configuration",
			"Check API keys and service connectivity")
	}

	var results []domain.Result
	switch kind {
	case KindScheduled:
		results = d.orchestrator.GenerateScheduled(ctx)

	case KindSingle:
		result, err := d.orchestrator.GenerateEpisode(ctx, pipeline.Request{
			SeriesID:       ev.SeriesID,
			PromptOverride: ev.CustomPrompt,
			AutoPublish:    ev.Publish(),
		})
		if err != nil {
			d.logger.Error("failed to generate episode",
				"series_id", ev.SeriesID,
				"kind", domain.Kind(err),
				"error", err,
			)
			break
		}
		results = []domain.Result{result}

	case KindBatch:
		results = d.orchestrator.GenerateBatch(ctx, ev.SeriesIDs, ev.CustomPrompts, ev.Publish())

	case KindRecords:
		results = d.records(ctx, ev.Records)

	default:
		results = d.orchestrator.GenerateBatch(ctx, d.orchestrator.SeriesIDs(), nil, true)
	}

	d.logger.Info("event processed", "kind", kind, "episodes_generated", len(results))

	episodes := summarize(results)
	return Response{
		StatusCode: http.StatusOK,
		Body: SuccessBody{
			Success:           true,
			EpisodesGenerated: len(episodes),
			Episodes:          episodes,
			Timestamp:         d.now().UTC(),
		},
	}
}

func (d *Dispatcher) action(ctx context.Context, action string) Response {
	switch action {
	case ActionStatus:
		return Response{
			StatusCode: http.StatusOK,
			Body: StatusBody{
				Success:   true,
				Series:    d.orchestrator.SeriesStatus(ctx),
				Timestamp: d.now().UTC(),
			},
		}
	case ActionValidate:
		return Response{
			StatusCode: http.StatusOK,
			Body: ValidateBody{
				Valid:     d.orchestrator.ValidateConfiguration(ctx),
				Timestamp: d.now().UTC(),
			},
		}
	}

	d.logger.Warn("ignoring unknown action", "action", action)
	return Response{
		StatusCode: http.StatusOK,
		Body: SuccessBody{
			Success:   true,
			Episodes:  []EpisodeSummary{},
			Timestamp: d.now().UTC(),
		},
	}
}

func (d *Dispatcher) records(ctx context.Context, records []Record) []domain.Result {
	var results []domain.Result
	for i, r := range records {
		if r.Sns == nil {
			d.logger.Warn("skipping record without notification", "index", i)
			continue
		}
		seriesID := RecordSeriesID(r, d.fallbackSeriesID)

		result, err := d.orchestrator.GenerateEpisode(ctx, pipeline.Request{SeriesID: seriesID, AutoPublish: true})
		if err != nil {
			d.logger.Error("error processing record", "index", i, "series_id", seriesID, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results
}

func (d *Dispatcher) errorResponse(status int, title, kind, message string) Response {
	return Response{
		StatusCode: status,
		Body: ErrorBody{
			Error:     title,
			Kind:      kind,
			Message:   message,
			Timestamp: d.now().UTC(),
		},
	}
}
