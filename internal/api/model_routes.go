package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/ocrnode/internal/api/models"
)

func (s *Server) registerModelRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/api/models",
		Summary:     "List Models",
		Description: "List the bundled model and every model installed in the model directory",
		Tags:        []string{"models"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ModelListResponse, error) {
		if s.models == nil {
			return &models.ModelListResponse{Body: models.ModelListData{Models: []models.ModelData{}}}, nil
		}
		list, err := s.models.List()
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list models", err)
		}

		out := make([]models.ModelData, len(list))
		for i, m := range list {
			out[i] = models.ModelData{
				ID:        m.ID,
				Language:  m.Language,
				Installed: m.Installed,
				Default:   m.Default,
			}
		}
		return &models.ModelListResponse{
			Body: models.ModelListData{Models: out, Count: len(out)},
		}, nil
	})
}
