// Package dashboard implements the orchestration core of the CareOrbit
// patient dashboard: one Session per mounted dashboard owns every loaded
// collection, drives the fan-out fetch against the care API, runs the chat
// turn state machine, and applies the mutation policies for care gaps.
package dashboard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/careorbit/dashboard/internal/model"
)

// Resource is the slice of the care API the orchestrator consumes. The
// careapi.Client satisfies it; tests substitute fakes.
type Resource interface {
	GetPatient(ctx context.Context, patientID string) (*model.Patient, error)
	GetHealthSummary(ctx context.Context, patientID string) (*model.HealthSummary, error)
	ListMedications(ctx context.Context, patientID string, activeOnly bool) ([]model.Medication, error)
	ListAppointments(ctx context.Context, patientID string, upcomingOnly bool) ([]model.Appointment, error)
	ListCareGaps(ctx context.Context, patientID string) ([]model.CareGap, error)
	ResolveCareGap(ctx context.Context, gapID string) error
	SendChatMessage(ctx context.Context, patientID, message string) (*model.OrchestrationResult, error)
}

// Tab selects which dashboard view is active. Pure UI state.
type Tab string

const (
	TabOverview     Tab = "overview"
	TabMedications  Tab = "medications"
	TabAppointments Tab = "appointments"
	TabCareGaps     Tab = "care-gaps"
	TabChat         Tab = "chat"
)

var validTabs = map[Tab]bool{
	TabOverview: true, TabMedications: true, TabAppointments: true,
	TabCareGaps: true, TabChat: true,
}

// ValidTab reports whether t names a dashboard view.
func ValidTab(t Tab) bool { return validTabs[t] }

// Orchestrator errors. Chat transport failures are absorbed into the
// transcript and never surface through these.
var (
	ErrEmptyMessage = &stateError{"message is empty"}
	ErrTurnInFlight = &stateError{"a chat turn is already awaiting its response"}
	ErrLoadInFlight = &stateError{"a load is already in flight"}
)

type stateError struct{ msg string }

func (e *stateError) Error() string { return e.msg }

// apologyMessage is the fixed assistant reply appended when a chat turn
// fails in transport or upstream.
const apologyMessage = "I apologize, but I encountered an issue processing your request. Please try again."

// Session is the single source of truth for one dashboard. All collections
// are owned exclusively by the session; readers get copies via Snapshot.
type Session struct {
	ID        string
	PatientID string

	api   Resource
	log   zerolog.Logger
	clock func() time.Time

	mu           sync.Mutex
	patient      *model.Patient
	summary      *model.HealthSummary
	medications  []model.Medication
	appointments []model.Appointment
	careGaps     []model.CareGap
	messages     []model.ChatMessage
	activeTab    Tab
	loading      bool
	chatBusy     bool
}

// NewSession creates an empty session for one patient. State is populated
// by LoadAll.
func NewSession(patientID string, api Resource, log zerolog.Logger) *Session {
	return &Session{
		ID:        uuid.New().String(),
		PatientID: patientID,
		api:       api,
		log:       log.With().Str("patient_id", patientID).Logger(),
		clock:     time.Now,
		activeTab: TabOverview,
	}
}

// SetClock replaces the session clock. Tests use it to pin "now".
func (s *Session) SetClock(clock func() time.Time) { s.clock = clock }

// LoadAll issues the five independent reads concurrently and commits them
// together. The join is all-or-nothing: if any fetch fails, the already
// resolved sibling results are discarded and previously loaded state is left
// untouched, so a failed manual refresh never clobbers a working view.
// Safe to call repeatedly; concurrent calls beyond the first are rejected.
func (s *Session) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrLoadInFlight
	}
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	var (
		patient *model.Patient
		summary *model.HealthSummary
		meds    []model.Medication
		appts   []model.Appointment
		gaps    []model.CareGap
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		patient, err = s.api.GetPatient(gctx, s.PatientID)
		return err
	})
	g.Go(func() (err error) {
		summary, err = s.api.GetHealthSummary(gctx, s.PatientID)
		return err
	})
	g.Go(func() (err error) {
		meds, err = s.api.ListMedications(gctx, s.PatientID, true)
		return err
	})
	g.Go(func() (err error) {
		appts, err = s.api.ListAppointments(gctx, s.PatientID, true)
		return err
	})
	g.Go(func() (err error) {
		gaps, err = s.api.ListCareGaps(gctx, s.PatientID)
		return err
	})

	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Msg("dashboard load failed")
		return err
	}

	s.mu.Lock()
	s.patient = patient
	s.summary = summary
	s.medications = meds
	s.appointments = appts
	s.careGaps = gaps
	s.mu.Unlock()
	return nil
}

// SendMessage runs one chat turn. The user message is appended
// optimistically before the upstream call; exactly one assistant message
// follows it, built from the orchestration result on success or from the
// fixed apology text on failure. Transport failures are absorbed into the
// transcript. Only precondition violations (empty input, a turn already in
// flight) return an error, and those append nothing.
func (s *Session) SendMessage(ctx context.Context, text string) (user, assistant model.ChatMessage, err error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return user, assistant, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.chatBusy {
		s.mu.Unlock()
		return user, assistant, ErrTurnInFlight
	}
	s.chatBusy = true
	user = model.ChatMessage{
		ID:        uuid.New().String(),
		PatientID: s.PatientID,
		Role:      model.RoleUser,
		Content:   trimmed,
		Timestamp: s.clock().UTC().Format(time.RFC3339),
	}
	s.messages = append(s.messages, user)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.chatBusy = false
		s.mu.Unlock()
	}()

	result, callErr := s.api.SendChatMessage(ctx, s.PatientID, trimmed)

	assistant = model.ChatMessage{
		ID:        uuid.New().String(),
		PatientID: s.PatientID,
		Role:      model.RoleAssistant,
		Timestamp: s.clock().UTC().Format(time.RFC3339),
	}
	if callErr != nil {
		s.log.Error().Err(callErr).Msg("chat turn failed")
		assistant.Content = apologyMessage
	} else {
		assistant.Content = result.PrimaryResponse
		assistant.Metadata = map[string]interface{}{
			"agents": result.AgentNames(),
		}
	}

	s.mu.Lock()
	s.messages = append(s.messages, assistant)
	s.mu.Unlock()
	return user, assistant, nil
}

// ResolveCareGap applies the confirmed-success mutation policy: the local
// collection changes only after the upstream accepts the resolution. On
// failure nothing changes and the caller may retry. Resolving an id absent
// from the local collection is a pass-through whose outcome the upstream
// decides.
func (s *Session) ResolveCareGap(ctx context.Context, gapID string) error {
	if err := s.api.ResolveCareGap(ctx, gapID); err != nil {
		s.log.Error().Err(err).Str("gap_id", gapID).Msg("care gap resolve failed")
		return err
	}

	s.mu.Lock()
	kept := s.careGaps[:0]
	for _, g := range s.careGaps {
		if g.ID != gapID {
			kept = append(kept, g)
		}
	}
	s.careGaps = kept
	s.mu.Unlock()
	return nil
}

// SetActiveTab switches the active view.
func (s *Session) SetActiveTab(t Tab) error {
	if !ValidTab(t) {
		return &stateError{"invalid tab: " + string(t)}
	}
	s.mu.Lock()
	s.activeTab = t
	s.mu.Unlock()
	return nil
}

// Snapshot is a point-in-time copy of the session state. Mutating a
// snapshot never affects the session.
type Snapshot struct {
	SessionID    string               `json:"session_id"`
	PatientID    string               `json:"patient_id"`
	Patient      *model.Patient       `json:"patient,omitempty"`
	Summary      *model.HealthSummary `json:"summary,omitempty"`
	Medications  []model.Medication   `json:"medications"`
	Appointments []model.Appointment  `json:"appointments"`
	CareGaps     []model.CareGap      `json:"care_gaps"`
	Messages     []model.ChatMessage  `json:"messages"`
	ActiveTab    Tab                  `json:"active_tab"`
	Loading      bool                 `json:"loading"`
	ChatBusy     bool                 `json:"chat_busy"`
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:    s.ID,
		PatientID:    s.PatientID,
		Medications:  append([]model.Medication(nil), s.medications...),
		Appointments: append([]model.Appointment(nil), s.appointments...),
		CareGaps:     append([]model.CareGap(nil), s.careGaps...),
		Messages:     copyMessages(s.messages),
		ActiveTab:    s.activeTab,
		Loading:      s.loading,
		ChatBusy:     s.chatBusy,
	}
	if s.patient != nil {
		p := *s.patient
		snap.Patient = &p
	}
	if s.summary != nil {
		sum := *s.summary
		snap.Summary = &sum
	}
	return snap
}

// Messages returns a window of the transcript plus its total length.
func (s *Session) Messages(limit, offset int) ([]model.ChatMessage, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.messages)
	if offset >= total {
		return []model.ChatMessage{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return copyMessages(s.messages[offset:end]), total
}

// Overview holds the render-time aggregates. Recomputed on every call
// against the supplied clock; never cached.
type Overview struct {
	Specialties          []string `json:"specialties"`
	DistinctSpecialties  int      `json:"distinct_specialties"`
	OpenCareGaps         int      `json:"open_care_gaps"`
	UpcomingAppointments int      `json:"upcoming_appointments"`
	PastAppointments     int      `json:"past_appointments"`
	LowRefillMedications []string `json:"low_refill_medications"`
}

// Overview derives the aggregate counts for the active view.
func (s *Session) Overview(now time.Time) Overview {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := Overview{
		Specialties:          []string{},
		LowRefillMedications: []string{},
		OpenCareGaps:         len(s.careGaps),
	}

	// Specialties are the prescribing specialties, so they come from the
	// medication list, not from appointments.
	seen := map[string]bool{}
	for _, m := range s.medications {
		if m.LowRefill() {
			o.LowRefillMedications = append(o.LowRefillMedications, m.Name)
		}
		if m.Specialty != "" && !seen[m.Specialty] {
			seen[m.Specialty] = true
			o.Specialties = append(o.Specialties, m.Specialty)
		}
	}

	for _, a := range s.appointments {
		if a.Upcoming(now) {
			o.UpcomingAppointments++
		} else {
			o.PastAppointments++
		}
	}
	o.DistinctSpecialties = len(o.Specialties)
	return o
}

func copyMessages(in []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Metadata != nil {
			meta := make(map[string]interface{}, len(out[i].Metadata))
			for k, v := range out[i].Metadata {
				meta[k] = v
			}
			out[i].Metadata = meta
		}
	}
	return out
}
