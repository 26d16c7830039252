// Package messaging connects the conversation engine to the WhatsApp Cloud
// API: an outbound sender and the inbound webhook handler.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veraclinic/agendabot/internal/conversation"
	"github.com/veraclinic/agendabot/pkg/logging"
)

var whatsappSendTracer = otel.Tracer("agendabot.internal.messaging.whatsapp_send")

// maxButtons is the Cloud API limit on interactive reply buttons. Longer
// choice lists fall back to a numbered text message.
const maxButtons = 3

// WhatsAppSender posts messages through the WhatsApp Cloud API (Graph API).
type WhatsAppSender struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	logger        *logging.Logger
}

// NewWhatsAppSender builds a sender bound to one WhatsApp business number.
func NewWhatsAppSender(baseURL, accessToken, phoneNumberID string, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppSender{
		baseURL:       strings.TrimRight(baseURL, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ conversation.Messenger = (*WhatsAppSender)(nil)

// SendText delivers a plain text message.
func (s *WhatsAppSender) SendText(ctx context.Context, userID, body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                userID,
		"type":              "text",
		"text":              map[string]interface{}{"body": body},
	}
	return s.post(ctx, userID, "text", payload)
}

// SendChoices delivers a multiple-choice prompt. Lists that fit the Cloud
// API button limit go out as interactive reply buttons; longer lists are
// rendered as a numbered text message, which the engine accepts back as
// plain digits.
func (s *WhatsAppSender) SendChoices(ctx context.Context, userID, body string, choices []conversation.Choice) error {
	if len(choices) == 0 {
		return s.SendText(ctx, userID, body)
	}
	if len(choices) > maxButtons {
		return s.SendText(ctx, userID, renderChoicesText(body, choices))
	}

	buttons := make([]map[string]interface{}, 0, len(choices))
	for _, c := range choices {
		buttons = append(buttons, map[string]interface{}{
			"type": "reply",
			"reply": map[string]interface{}{
				"id":    c.ID,
				"title": c.Label,
			},
		})
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                userID,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]interface{}{"text": body},
			"action": map[string]interface{}{"buttons": buttons},
		},
	}
	return s.post(ctx, userID, "interactive", payload)
}

func renderChoicesText(body string, choices []conversation.Choice) string {
	var sb strings.Builder
	sb.WriteString(body)
	for _, c := range choices {
		sb.WriteString("\n")
		sb.WriteString(c.ID)
		sb.WriteString(") ")
		sb.WriteString(c.Label)
	}
	return sb.String()
}

// post sends one Graph API message request, retrying transient failures.
func (s *WhatsAppSender) post(ctx context.Context, userID, kind string, payload map[string]interface{}) error {
	if s.accessToken == "" {
		return errors.New("messaging: whatsapp access token missing")
	}
	if userID == "" {
		return errors.New("messaging: recipient required")
	}

	ctx, span := whatsappSendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("agendabot.to", userID),
		attribute.String("agendabot.kind", kind),
	)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal whatsapp payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("whatsapp message sent", "to", userID, "kind", kind)
				return nil
			}
			var errorBody map[string]interface{}
			if len(respBody) > 0 && json.Unmarshal(respBody, &errorBody) == nil {
				lastErr = fmt.Errorf("whatsapp send failed: status %d, body: %v", resp.StatusCode, errorBody)
			} else {
				lastErr = fmt.Errorf("whatsapp send failed: status %d", resp.StatusCode)
			}
			// 4xx other than rate limiting will not succeed on retry.
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send whatsapp message", "error", lastErr, "to", userID, "kind", kind)
	}
	return lastErr
}
