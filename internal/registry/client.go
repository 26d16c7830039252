package registry

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

// PortalClient implements Client against the patient portal's REST API.
type PortalClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds configuration for the portal client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewPortalClient creates a patient portal client.
func NewPortalClient(cfg Config) (*PortalClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("registry: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("registry: APIKey is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &PortalClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

var _ Client = (*PortalClient)(nil)

// FindIDByNationalID resolves a CPF to a portal patient id.
// Portal API: GET /api/patients/lookup?cpf={cpf}
func (c *PortalClient) FindIDByNationalID(ctx context.Context, nationalID string) (string, error) {
	params := url.Values{}
	params.Set("cpf", OnlyDigits(nationalID))
	endpoint := fmt.Sprintf("%s/api/patients/lookup?%s", c.baseURL, params.Encode())

	var out struct {
		PatientID string `json:"patient_id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return "", err
	}
	if out.PatientID == "" {
		return "", ErrNotFound
	}
	return out.PatientID, nil
}

// GetProfile fetches a patient's full demographic record.
// Portal API: GET /api/patients/{id}
func (c *PortalClient) GetProfile(ctx context.Context, patientID string) (*PatientProfile, error) {
	endpoint := fmt.Sprintf("%s/api/patients/%s", c.baseURL, url.PathEscape(patientID))

	var profile PatientProfile
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &profile); err != nil {
		return nil, err
	}
	if profile.PatientID == "" {
		profile.PatientID = patientID
	}
	return &profile, nil
}

// UpsertProfile creates or updates a patient record.
// Portal API: POST /api/patients or PUT /api/patients/{id}
func (c *PortalClient) UpsertProfile(ctx context.Context, existingID string, form ProfileForm) (string, error) {
	method := http.MethodPost
	endpoint := fmt.Sprintf("%s/api/patients", c.baseURL)
	if existingID != "" {
		method = http.MethodPut
		endpoint = fmt.Sprintf("%s/api/patients/%s", c.baseURL, url.PathEscape(existingID))
		// Never resend a temp password on update: the patient may already
		// have an active one.
		form.TempPassword = ""
	}

	var out struct {
		PatientID string `json:"patient_id"`
	}
	if err := c.doJSON(ctx, method, endpoint, form, &out); err != nil {
		return "", err
	}
	if out.PatientID == "" {
		return existingID, nil
	}
	return out.PatientID, nil
}

// RequestCredentialReset triggers the portal's first-access notification.
// Portal API: POST /api/patients/password-reset
func (c *PortalClient) RequestCredentialReset(ctx context.Context, nationalID, birthDate string) error {
	endpoint := fmt.Sprintf("%s/api/patients/password-reset", c.baseURL)
	payload := map[string]string{
		"cpf":        OnlyDigits(nationalID),
		"birth_date": birthDate,
	}
	return c.doJSON(ctx, http.MethodPost, endpoint, payload, nil)
}

func (c *PortalClient) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("registry: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("registry: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registry: API error (status %d): %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("registry: decode response: %w", err)
	}
	return nil
}
