package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/channels"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/prediction"
)

type fixedPredictor struct {
	value float64
}

func (f fixedPredictor) GetPrediction(context.Context, domain.Instrument) (prediction.Prediction, error) {
	return prediction.Prediction{Value: f.value}, nil
}

type sink struct {
	name string
	mu   sync.Mutex
	sent []channels.Message
}

func (s *sink) Name() string { return s.name }

func (s *sink) Send(_ context.Context, msg channels.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *sink) messages() []channels.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]channels.Message(nil), s.sent...)
}

func newRouter(d *channels.Dispatcher, whatsapp, telegram channels.Notifier) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", NewHandler(d, whatsapp, telegram, zerolog.Nop()).RegisterRoutes)
	return r
}

func TestHandleWhatsApp(t *testing.T) {
	wa := &sink{name: "twilio"}
	d := channels.NewDispatcher(fixedPredictor{value: 131.256}, time.Second, nil, zerolog.Nop())
	router := newRouter(d, wa, nil)

	form := url.Values{"Body": {"nas nvda"}, "From": {"whatsapp:+15550001"}, "To": {"whatsapp:+15559999"}}
	req := httptest.NewRequest(http.MethodPost, "/api/channels/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"<Response><Message><Body>Request received for NVDA (NAS). You will receive the prediction shortly.</Body></Message></Response>",
		rec.Body.String())

	d.Close()
	assert.Equal(t, []channels.Message{{
		To: "whatsapp:+15550001", From: "whatsapp:+15559999", Text: "Prediction for NVDA: 131.26",
	}}, wa.messages())
}

func TestHandleWhatsAppInvalidCommand(t *testing.T) {
	wa := &sink{name: "twilio"}
	d := channels.NewDispatcher(fixedPredictor{}, time.Second, nil, zerolog.Nop())
	router := newRouter(d, wa, nil)

	form := url.Values{"Body": {"<hello>"}, "From": {"whatsapp:+1"}, "To": {"whatsapp:+2"}}
	req := httptest.NewRequest(http.MethodPost, "/api/channels/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Parameter. Format: NPS or NAS &lt;stock_symbol&gt;")
	d.Close()
	assert.Empty(t, wa.messages())
}

func TestHandleTelegram(t *testing.T) {
	tg := &sink{name: "telegram"}
	d := channels.NewDispatcher(fixedPredictor{value: 512}, time.Second, nil, zerolog.Nop())
	router := newRouter(d, nil, tg)

	update := `{"update_id": 9, "message": {"text": "/predict NPS NABIL", "chat": {"id": 4242}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/channels/telegram", strings.NewReader(update)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sendMessage", body["method"])
	assert.Equal(t, float64(4242), body["chat_id"])
	assert.Equal(t, "Request received for NABIL (NPS). You will receive the prediction shortly.", body["text"])

	d.Close()
	assert.Equal(t, []channels.Message{{To: "4242", Text: "Prediction for NABIL: 512.00"}}, tg.messages())
}

func TestDisabledChannelIsNotRouted(t *testing.T) {
	d := channels.NewDispatcher(fixedPredictor{}, time.Second, nil, zerolog.Nop())
	defer d.Close()
	router := newRouter(d, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/channels/telegram", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
