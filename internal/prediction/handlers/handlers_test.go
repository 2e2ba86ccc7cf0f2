package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/prediction"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetPrediction(ctx context.Context, inst domain.Instrument) (prediction.Prediction, error) {
	args := m.Called(ctx, inst)
	return args.Get(0).(prediction.Prediction), args.Error(1)
}

func serve(t *testing.T, svc PredictionGetter, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", NewHandler(svc, zerolog.Nop()).RegisterRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandleGetPrediction_Success(t *testing.T) {
	svc := &mockService{}
	inst := domain.Instrument{Market: domain.MarketNAS, Symbol: "NVDA"}
	svc.On("GetPrediction", mock.Anything, inst).Return(prediction.Prediction{
		Instrument: inst, Value: 131.25, Cached: true, ProducedAt: time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC),
	}, nil)

	rec, body := serve(t, svc, "/api/predictions/nas/nvda")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "NVDA", body["symbol"])
	assert.Equal(t, "NAS", body["market"])
	assert.Equal(t, 131.25, body["prediction"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "2024-08-01T09:00:00Z", body["produced_at"])
	svc.AssertExpectations(t)
}

func TestHandleGetPrediction_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
		kind   string
	}{
		{"unknown market", "/api/predictions/LSE/VOD", nil, http.StatusBadRequest, "InvalidInput"},
		{"model missing", "/api/predictions/NAS/NVDA", domain.NewError(domain.KindModelNotFound, "load model", "NAS_NVDA", nil), http.StatusNotFound, "ModelNotFound"},
		{"data missing", "/api/predictions/NPS/NABIL", domain.NewError(domain.KindDataNotFound, "load series", "NPS/NABIL", nil), http.StatusNotFound, "DataNotFound"},
		{"short series", "/api/predictions/NAS/NVDA", domain.ErrInsufficientData, http.StatusUnprocessableEntity, "InsufficientData"},
		{"store down", "/api/predictions/NAS/NVDA", domain.Unavailable("blob get", errors.New("dial tcp 10.0.0.3:9000: refused")), http.StatusServiceUnavailable, "StoreUnavailable"},
		{"unclassified", "/api/predictions/NAS/NVDA", errors.New("boom"), http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("GetPrediction", mock.Anything, mock.Anything).Return(prediction.Prediction{}, tt.err)

			rec, body := serve(t, svc, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotContains(t, body["message"], "dial tcp", "internal detail is not exposed")
		})
	}
}
