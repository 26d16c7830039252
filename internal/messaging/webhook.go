package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veraclinic/agendabot/internal/conversation"
	"github.com/veraclinic/agendabot/pkg/logging"
)

var webhookTracer = otel.Tracer("agendabot.internal.messaging.webhook")

// eventProcessor is the slice of the conversation engine the webhook needs.
type eventProcessor interface {
	HandleEvent(ctx context.Context, event conversation.InboundEvent) error
}

// Handler terminates the WhatsApp Cloud API webhook: the GET verification
// handshake and the POST message notifications.
type Handler struct {
	verifyToken string
	engine      eventProcessor
	logger      *logging.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(verifyToken string, engine eventProcessor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if engine == nil {
		panic("messaging: engine cannot be nil")
	}
	return &Handler{
		verifyToken: verifyToken,
		engine:      engine,
		logger:      logger,
	}
}

// Verify handles GET /webhook: Meta's subscription handshake. Echoes the
// challenge when mode and token match, 403 otherwise.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	h.logger.Warn("webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// webhookPayload mirrors the slice of the Cloud API notification envelope
// the bot consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive struct {
						ButtonReply struct {
							ID string `json:"id"`
						} `json:"button_reply"`
						ListReply struct {
							ID string `json:"id"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles POST /webhook. Meta retries deliveries that do not get a
// 2xx, so every parseable request is acknowledged with 200 regardless of
// what processing does with it.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("unparseable webhook payload", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	event, ok := extractEvent(payload)
	if !ok {
		// Status callbacks and other non-message notifications land here.
		w.WriteHeader(http.StatusOK)
		return
	}
	span.SetAttributes(
		attribute.String("agendabot.from", event.UserID),
		attribute.String("agendabot.phone_number_id", event.RoutingHint),
	)

	if err := h.engine.HandleEvent(ctx, event); err != nil {
		h.logger.Error("event processing failed", "error", err, "from", event.UserID)
		span.RecordError(err)
	}
	w.WriteHeader(http.StatusOK)
}

// extractEvent pulls the first message out of the notification envelope.
// Button and list replies surface their option id as the event text.
func extractEvent(payload webhookPayload) (conversation.InboundEvent, bool) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			if len(v.Messages) == 0 {
				continue
			}
			msg := v.Messages[0]
			if msg.From == "" {
				continue
			}

			var text string
			switch {
			case msg.Interactive.ButtonReply.ID != "":
				text = msg.Interactive.ButtonReply.ID
			case msg.Interactive.ListReply.ID != "":
				text = msg.Interactive.ListReply.ID
			default:
				text = msg.Text.Body
			}
			if strings.TrimSpace(text) == "" {
				continue
			}

			return conversation.InboundEvent{
				UserID:      msg.From,
				Text:        text,
				RoutingHint: v.Metadata.PhoneNumberID,
			}, true
		}
	}
	return conversation.InboundEvent{}, false
}
