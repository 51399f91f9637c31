// Package careapi is the transport facade over the upstream
// care-coordination API. It exposes one method per logical endpoint and
// nothing else; orchestration policy lives in the dashboard package.
package careapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/careorbit/dashboard/internal/model"
)

// DefaultTimeout bounds every upstream call so a lost reply cannot pin a
// chat turn in awaiting-response indefinitely.
const DefaultTimeout = 30 * time.Second

// StatusError reports a non-2xx upstream reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// Client calls the upstream care API over HTTP/JSON. Unknown response fields
// are ignored so newer upstream payloads decode cleanly.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client for the given base URL. A zero timeout falls
// back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// GetPatient fetches one patient record.
func (c *Client) GetPatient(ctx context.Context, patientID string) (*model.Patient, error) {
	var p model.Patient
	if err := c.getJSON(ctx, "/api/patients/"+url.PathEscape(patientID), nil, &p); err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// GetHealthSummary fetches the server-computed rollup for one patient.
func (c *Client) GetHealthSummary(ctx context.Context, patientID string) (*model.HealthSummary, error) {
	var s model.HealthSummary
	if err := c.getJSON(ctx, "/api/patients/"+url.PathEscape(patientID)+"/summary", nil, &s); err != nil {
		return nil, fmt.Errorf("get health summary: %w", err)
	}
	return &s, nil
}

// ListMedications fetches a patient's medications, optionally filtered to
// active prescriptions.
func (c *Client) ListMedications(ctx context.Context, patientID string, activeOnly bool) ([]model.Medication, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("active_only", "true")
	}
	var meds []model.Medication
	if err := c.getJSON(ctx, "/api/patients/"+url.PathEscape(patientID)+"/medications", q, &meds); err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	return meds, nil
}

// ListAppointments fetches a patient's appointments, optionally filtered to
// future visits.
func (c *Client) ListAppointments(ctx context.Context, patientID string, upcomingOnly bool) ([]model.Appointment, error) {
	q := url.Values{}
	if upcomingOnly {
		q.Set("upcoming_only", "true")
	}
	var appts []model.Appointment
	if err := c.getJSON(ctx, "/api/patients/"+url.PathEscape(patientID)+"/appointments", q, &appts); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListCareGaps fetches a patient's open care gaps.
func (c *Client) ListCareGaps(ctx context.Context, patientID string) ([]model.CareGap, error) {
	var gaps []model.CareGap
	if err := c.getJSON(ctx, "/api/patients/"+url.PathEscape(patientID)+"/care-gaps", nil, &gaps); err != nil {
		return nil, fmt.Errorf("list care gaps: %w", err)
	}
	return gaps, nil
}

// ResolveCareGap asks the upstream to mark a gap resolved. Success or
// failure is entirely the upstream's decision; no response body is assumed.
func (c *Client) ResolveCareGap(ctx context.Context, gapID string) error {
	if err := c.postJSON(ctx, "/api/care-gaps/"+url.PathEscape(gapID)+"/resolve", nil, nil); err != nil {
		return fmt.Errorf("resolve care gap: %w", err)
	}
	return nil
}

type chatRequest struct {
	PatientID string `json:"patient_id"`
	Message   string `json:"message"`
}

// SendChatMessage submits one chat turn to the multi-agent upstream and
// returns its orchestrated result.
func (c *Client) SendChatMessage(ctx context.Context, patientID, message string) (*model.OrchestrationResult, error) {
	var result model.OrchestrationResult
	req := chatRequest{PatientID: patientID, Message: message}
	if err := c.postJSON(ctx, "/api/chat", req, &result); err != nil {
		return nil, fmt.Errorf("send chat message: %w", err)
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("care api request failed")
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("care api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) // drain
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
