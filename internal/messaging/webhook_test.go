package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veraclinic/agendabot/internal/conversation"
)

type fakeEngine struct {
	events []conversation.InboundEvent
	err    error
}

func (f *fakeEngine) HandleEvent(_ context.Context, ev conversation.InboundEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestVerifyHandshake(t *testing.T) {
	h := NewHandler("my-verify-token", &fakeEngine{}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=my-verify-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h := NewHandler("my-verify-token", &fakeEngine{}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyRejectsBadMode(t *testing.T) {
	h := NewHandler("my-verify-token", &fakeEngine{}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=unsubscribe&hub.verify_token=my-verify-token", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

const textNotification = `{
  "entry": [{
    "changes": [{
      "value": {
        "metadata": {"phone_number_id": "pn-1"},
        "messages": [{
          "from": "5511999990000",
          "type": "text",
          "text": {"body": "oi, bom dia"}
        }]
      }
    }]
  }]
}`

const buttonNotification = `{
  "entry": [{
    "changes": [{
      "value": {
        "metadata": {"phone_number_id": "pn-1"},
        "messages": [{
          "from": "5511999990000",
          "type": "interactive",
          "interactive": {"button_reply": {"id": "2", "title": "Escolher outro horário"}}
        }]
      }
    }]
  }]
}`

const statusNotification = `{
  "entry": [{
    "changes": [{
      "value": {
        "metadata": {"phone_number_id": "pn-1"},
        "statuses": [{"id": "wamid.X", "status": "delivered"}]
      }
    }]
  }]
}`

func TestReceiveTextMessage(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler("tok", engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textNotification))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, engine.events, 1)
	ev := engine.events[0]
	assert.Equal(t, "5511999990000", ev.UserID)
	assert.Equal(t, "oi, bom dia", ev.Text)
	assert.Equal(t, "pn-1", ev.RoutingHint)
}

func TestReceiveButtonReplyUsesOptionID(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler("tok", engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(buttonNotification))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	require.Len(t, engine.events, 1)
	assert.Equal(t, "2", engine.events[0].Text)
}

func TestReceiveStatusCallbackIgnored(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler("tok", engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(statusNotification))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, engine.events)
}

func TestReceiveGarbageStillAcknowledged(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler("tok", engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	// Meta retries non-2xx responses forever; bad payloads are dropped, not
	// bounced.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, engine.events)
}

func TestReceiveEngineErrorStillAcknowledged(t *testing.T) {
	engine := &fakeEngine{err: assert.AnError}
	h := NewHandler("tok", engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textNotification))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractEventSkipsEmptyText(t *testing.T) {
	var payload webhookPayload
	_, ok := extractEvent(payload)
	assert.False(t, ok)
}
