package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/ocrnode/internal/api/models"
	"github.com/smazurov/ocrnode/internal/ipc"
	modelstore "github.com/smazurov/ocrnode/internal/models"
	"github.com/smazurov/ocrnode/internal/sidecar"
)

func (s *Server) registerOCRRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "run-ocr",
		Method:      http.MethodPost,
		Path:        "/api/ocr",
		Summary:     "Recognize Text",
		Description: "Run one recognition job. Requests are served one at a time in arrival order; " +
			"closing the connection cancels a queued or running job.",
		Tags:     []string{"ocr"},
		Errors:   []int{400, 401, 404, 409, 422, 500, 502, 503, 504},
		Security: withAuth(),
	}, func(ctx context.Context, input *models.OCRRequest) (*models.OCRResponse, error) {
		req := &ipc.Request{
			Kind: ipc.RequestKind(input.Body.Type),
			Data: input.Body.Data,
		}
		if s.models != nil {
			cfg, err := s.models.Resolve(input.Body.Model)
			if err != nil {
				return nil, mapModelError(err)
			}
			req.Config = cfg
		}

		start := time.Now()
		boxes, err := s.supervisor.Run(ctx, req)
		if err != nil {
			return nil, mapJobError(err)
		}

		return &models.OCRResponse{
			Body: models.OCRData{
				Boxes:      toBoxData(boxes),
				Count:      len(boxes),
				DurationMs: time.Since(start).Milliseconds(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-ocr",
		Method:      http.MethodPost,
		Path:        "/api/ocr/cancel",
		Summary:     "Cancel Job",
		Description: "Cancel the running job, if any. The engine is asked to stop and killed after the grace period.",
		Tags:        []string{"ocr"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.CancelResponse, error) {
		cancelled, err := s.supervisor.Cancel(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("cancel did not complete", err)
		}
		msg := "no job running"
		if cancelled {
			msg = "job cancelled"
		}
		return &models.CancelResponse{
			Body: models.CancelData{Cancelled: cancelled, Message: msg},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-ocr-status",
		Method:      http.MethodGet,
		Path:        "/api/ocr/status",
		Summary:     "Job Status",
		Description: "Current job state, engine process and queue length",
		Tags:        []string{"ocr"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.JobStatusResponse, error) {
		return &models.JobStatusResponse{Body: s.statusData()}, nil
	})
}

func (s *Server) statusData() models.JobStatusData {
	st := s.supervisor.Status()
	timeout, grace := s.supervisor.Tuning()
	data := models.JobStatusData{
		State:       string(st.State),
		JobID:       st.JobID,
		PID:         st.PID,
		Waiting:     st.Waiting,
		TimeoutMs:   timeout.Milliseconds(),
		GraceMs:     grace.Milliseconds(),
		LastJobID:   st.LastJobID,
		LastState:   string(st.LastState),
		LastOutcome: string(st.LastOutcome),
		LastError:   st.LastError,
	}
	if !st.StartedAt.IsZero() {
		data.StartedAt = &st.StartedAt
	}
	if !st.LastEndedAt.IsZero() {
		data.LastEndedAt = &st.LastEndedAt
	}
	return data
}

func toBoxData(boxes []ipc.Box) []models.BoxData {
	out := make([]models.BoxData, len(boxes))
	for i, b := range boxes {
		poly := make([][2]float64, len(b.Polygon))
		for j, p := range b.Polygon {
			poly[j] = p
		}
		out[i] = models.BoxData{Text: b.Text, Box: poly, Confidence: b.Confidence}
	}
	return out
}

// mapJobError converts a Run error to an HTTP error by outcome.
func mapJobError(err error) error {
	switch sidecar.Classify(err) {
	case sidecar.OutcomeInvalidRequest:
		return huma.Error400BadRequest(err.Error(), err)
	case sidecar.OutcomeWorkerError:
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case sidecar.OutcomeProtocolError:
		return huma.Error502BadGateway("engine output could not be decoded", err)
	case sidecar.OutcomeCancelled:
		return huma.Error409Conflict("job cancelled", err)
	case sidecar.OutcomeTimedOut:
		return huma.Error504GatewayTimeout("job timed out", err)
	case sidecar.OutcomeLaunchFailed:
		return huma.Error503ServiceUnavailable("engine could not be started", err)
	}
	return huma.Error500InternalServerError("job failed", err)
}

func mapModelError(err error) error {
	switch {
	case errors.Is(err, modelstore.ErrInvalidID):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, modelstore.ErrNotInstalled):
		return huma.Error404NotFound(err.Error(), err)
	}
	return huma.Error500InternalServerError("model lookup failed", err)
}
