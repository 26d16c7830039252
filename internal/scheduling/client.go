package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 20 * time.Second

// AgendaClient implements Client against the scheduling service's REST API.
type AgendaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds configuration for the agenda client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewAgendaClient creates a scheduling service client.
func NewAgendaClient(cfg Config) (*AgendaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scheduling: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scheduling: APIKey is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &AgendaClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

var _ Client = (*AgendaClient)(nil)

// ListSlots returns the raw slot list for a provider on a calendar date.
// Agenda API: GET /api/agenda/slots?provider_id=&patient_id=&date=
func (c *AgendaClient) ListSlots(ctx context.Context, providerID, patientID, date string) ([]RawSlot, error) {
	params := url.Values{}
	params.Set("provider_id", providerID)
	params.Set("patient_id", patientID)
	params.Set("date", date)
	endpoint := fmt.Sprintf("%s/api/agenda/slots?%s", c.baseURL, params.Encode())

	var out struct {
		Slots []RawSlot `json:"slots"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// ConfirmBooking commits an appointment.
// Agenda API: POST /api/agenda/bookings
func (c *AgendaClient) ConfirmBooking(ctx context.Context, providerID, patientID, planCode, slotID string) (*Confirmation, error) {
	endpoint := fmt.Sprintf("%s/api/agenda/bookings", c.baseURL)
	payload := map[string]string{
		"provider_id": providerID,
		"patient_id":  patientID,
		"plan":        planCode,
		"slot_id":     slotID,
	}

	var conf Confirmation
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// GetBookingHistory returns a patient's bookings.
// Agenda API: GET /api/agenda/patients/{id}/bookings
func (c *AgendaClient) GetBookingHistory(ctx context.Context, patientID string) ([]Booking, error) {
	endpoint := fmt.Sprintf("%s/api/agenda/patients/%s/bookings", c.baseURL, url.PathEscape(patientID))

	var out struct {
		Bookings []Booking `json:"bookings"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

func (c *AgendaClient) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("scheduling: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("scheduling: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scheduling: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone {
		return ErrSlotUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scheduling: API error (status %d): %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scheduling: decode response: %w", err)
	}
	return nil
}
