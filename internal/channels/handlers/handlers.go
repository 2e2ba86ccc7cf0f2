// Package handlers provides the inbound chat webhooks.
package handlers

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/channels"
)

const shuttingDownText = "Service is restarting, please try again shortly."

// Handler serves the WhatsApp and Telegram webhooks. A nil notifier disables
// its route.
type Handler struct {
	dispatcher *channels.Dispatcher
	whatsapp   channels.Notifier
	telegram   channels.Notifier
	log        zerolog.Logger
}

// NewHandler creates the webhook handler
func NewHandler(dispatcher *channels.Dispatcher, whatsapp, telegram channels.Notifier, log zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		whatsapp:   whatsapp,
		telegram:   telegram,
		log:        log.With().Str("handler", "channels").Logger(),
	}
}

// RegisterRoutes registers the configured webhooks
func (h *Handler) RegisterRoutes(r chi.Router) {
	if h.whatsapp == nil && h.telegram == nil {
		return
	}
	r.Route("/channels", func(r chi.Router) {
		if h.whatsapp != nil {
			r.Post("/whatsapp", h.HandleWhatsApp)
		}
		if h.telegram != nil {
			r.Post("/telegram", h.HandleTelegram)
		}
	})
}

type twimlMessage struct {
	Body string `xml:"Body"`
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Message twimlMessage `xml:"Message"`
}

// HandleWhatsApp handles POST /api/channels/whatsapp (Twilio form webhook).
// The reply is sent from the number the request was addressed to.
func (h *Handler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	ack := h.submit(h.whatsapp, from, to, r.PostForm.Get("Body"))

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(twimlResponse{Message: twimlMessage{Body: ack}}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode TwiML response")
	}
}

// TelegramUpdate is the subset of a Telegram update the webhook reads
type TelegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// HandleTelegram handles POST /api/channels/telegram. The acknowledgement is
// returned as a webhook reply.
func (h *Handler) HandleTelegram(w http.ResponseWriter, r *http.Request) {
	var update TelegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	if update.Message == nil || update.Message.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID := update.Message.Chat.ID
	ack := h.submit(h.telegram, strconv.FormatInt(chatID, 10), "", update.Message.Text)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"method":  "sendMessage",
		"chat_id": chatID,
		"text":    ack,
	})
}

func (h *Handler) submit(sink channels.Notifier, to, from, text string) string {
	ack, _, err := h.dispatcher.Submit(sink, to, from, text)
	if errors.Is(err, channels.ErrClosed) {
		return shuttingDownText
	}
	if err != nil {
		h.log.Debug().Err(err).Str("channel", sink.Name()).Msg("Rejected command")
	}
	return ack
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
