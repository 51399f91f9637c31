package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careorbit/dashboard/internal/model"
)

func newTestHandler() (*echo.Echo, *Store) {
	store := NewStore()
	orch := NewOrchestrator(store, nil, zerolog.Nop())
	e := echo.New()
	NewHandler(store, orch).RegisterRoutes(e)
	return e, store
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetPatient(t *testing.T) {
	e, _ := newTestHandler()

	rec := doJSON(e, http.MethodGet, "/api/patients/patient-001", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p model.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode patient: %v", err)
	}
	if p.FirstName != "Sarah" || p.LastName != "Johnson" {
		t.Errorf("unexpected patient: %+v", p)
	}

	rec = doJSON(e, http.MethodGet, "/api/patients/patient-999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown patient, got %d", rec.Code)
	}
}

func TestListMedicationsActiveOnly(t *testing.T) {
	e, _ := newTestHandler()

	rec := doJSON(e, http.MethodGet, "/api/patients/patient-001/medications", "")
	var all []model.Medication
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode medications: %v", err)
	}

	rec = doJSON(e, http.MethodGet, "/api/patients/patient-001/medications?active_only=true", "")
	var active []model.Medication
	if err := json.Unmarshal(rec.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode medications: %v", err)
	}

	if len(active) >= len(all) {
		t.Errorf("active_only did not filter: %d active of %d total", len(active), len(all))
	}
	for _, m := range active {
		if m.Status != model.MedicationActive {
			t.Errorf("non-active medication in filtered list: %+v", m)
		}
	}
}

func TestListAppointmentsUpcomingOnly(t *testing.T) {
	e, _ := newTestHandler()

	rec := doJSON(e, http.MethodGet, "/api/patients/patient-001/appointments?upcoming_only=true", "")
	var appts []model.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &appts); err != nil {
		t.Fatalf("decode appointments: %v", err)
	}
	if len(appts) != 2 {
		t.Errorf("expected 2 upcoming appointments, got %d", len(appts))
	}
	now := time.Now()
	for _, a := range appts {
		if !a.Upcoming(now) {
			t.Errorf("past appointment in upcoming list: %+v", a)
		}
	}
}

func TestResolveCareGapLifecycle(t *testing.T) {
	e, _ := newTestHandler()

	rec := doJSON(e, http.MethodGet, "/api/patients/patient-001/care-gaps", "")
	var before []model.CareGap
	if err := json.Unmarshal(rec.Body.Bytes(), &before); err != nil {
		t.Fatalf("decode care gaps: %v", err)
	}
	if len(before) != 3 {
		t.Fatalf("expected 3 seeded care gaps, got %d", len(before))
	}

	rec = doJSON(e, http.MethodPost, "/api/care-gaps/gap-001/resolve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/patients/patient-001/care-gaps", "")
	var after []model.CareGap
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode care gaps: %v", err)
	}
	if len(after) != 2 {
		t.Errorf("resolved gap still listed: %+v", after)
	}
	for _, g := range after {
		if g.ID == "gap-001" {
			t.Error("gap-001 still present after resolve")
		}
	}

	// Resolving again is a no-op that still succeeds.
	rec = doJSON(e, http.MethodPost, "/api/care-gaps/gap-001/resolve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat resolve, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/care-gaps/gap-999/resolve", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown gap, got %d", rec.Code)
	}
}

func TestSummaryRollup(t *testing.T) {
	_, store := newTestHandler()

	sum, ok := store.Summary("patient-001")
	if !ok {
		t.Fatal("summary for seeded patient missing")
	}
	if sum.ActiveMedications != 3 {
		t.Errorf("expected 3 active medications, got %d", sum.ActiveMedications)
	}
	if sum.OpenCareGaps != 3 {
		t.Errorf("expected 3 open care gaps, got %d", sum.OpenCareGaps)
	}
	if sum.UpcomingAppointments != 2 {
		t.Errorf("expected 2 upcoming appointments, got %d", sum.UpcomingAppointments)
	}
	if len(sum.CriticalAlerts) == 0 {
		t.Error("expected the low-refill and high-severity alerts to surface")
	}
}

func TestOrchestratorRouting(t *testing.T) {
	store := NewStore()
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	tests := []struct {
		name    string
		message string
		agents  []string
	}{
		{"medication question", "What medications am I taking?", []string{"medication-agent"}},
		{"appointment question", "When is my next appointment?", []string{"appointment-agent"}},
		{"care gap question", "Am I overdue for any screening?", []string{"care-gap-agent"}},
		{"general question", "Tell me about my overall health", []string{"health-insights-agent"}},
		{"fallback", "thanks!", []string{"health-insights-agent"}},
		{
			"multi-domain question",
			"Do my medications require a doctor visit?",
			[]string{"medication-agent", "appointment-agent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := orch.Process(context.Background(), "patient-001", tt.message)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			got := result.AgentNames()
			if len(got) != len(tt.agents) {
				t.Fatalf("expected agents %v, got %v", tt.agents, got)
			}
			for i := range got {
				if got[i] != tt.agents[i] {
					t.Fatalf("expected agents %v, got %v", tt.agents, got)
				}
			}
			if result.PrimaryResponse == "" {
				t.Error("empty primary response")
			}
		})
	}
}

func TestOrchestratorUnknownPatient(t *testing.T) {
	store := NewStore()
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	if _, err := orch.Process(context.Background(), "patient-999", "hello"); err == nil {
		t.Fatal("expected error for unknown patient")
	}
}

type fakeRefiner struct {
	out string
	err error
}

func (f *fakeRefiner) Refine(ctx context.Context, question, draft string) (string, error) {
	return f.out, f.err
}

func TestOrchestratorRefinement(t *testing.T) {
	store := NewStore()

	orch := NewOrchestrator(store, &fakeRefiner{out: "refined reply"}, zerolog.Nop())
	result, err := orch.Process(context.Background(), "patient-001", "hello")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.PrimaryResponse != "refined reply" {
		t.Errorf("expected refined text, got %q", result.PrimaryResponse)
	}

	// Refiner failure falls back to the synthesized text.
	orch = NewOrchestrator(store, &fakeRefiner{err: context.DeadlineExceeded}, zerolog.Nop())
	result, err = orch.Process(context.Background(), "patient-001", "hello")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.PrimaryResponse == "" || result.PrimaryResponse == "refined reply" {
		t.Errorf("expected synthesized fallback, got %q", result.PrimaryResponse)
	}
}

func TestChatEndpoint(t *testing.T) {
	e, _ := newTestHandler()

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"patient_id":"patient-001","message":"What medications am I taking?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result model.OrchestrationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.AgentContributions) != 1 || result.AgentContributions[0].AgentName != "medication-agent" {
		t.Errorf("unexpected contributions: %+v", result.AgentContributions)
	}

	rec = doJSON(e, http.MethodPost, "/api/chat", `{"patient_id":"patient-001","message":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", rec.Code)
	}
}
