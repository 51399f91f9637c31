// Package model defines the wire contract shared between the dashboard
// orchestrator and the upstream care-coordination API. All types are
// session-scoped snapshots; nothing here is persisted.
package model

import "time"

// Care gap severities, ordered by clinical urgency.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Medication statuses.
const (
	MedicationActive    = "active"
	MedicationStopped   = "stopped"
	MedicationOnHold    = "on-hold"
	MedicationCompleted = "completed"
)

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no-show"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAgent     = "agent"
)

var validSeverities = map[string]bool{
	SeverityLow: true, SeverityMedium: true, SeverityHigh: true, SeverityCritical: true,
}

// ValidSeverity reports whether s is a recognized care-gap severity.
func ValidSeverity(s string) bool { return validSeverities[s] }

// Patient is the demographic and condition record for one patient.
// Immutable for the lifetime of a dashboard session once loaded.
type Patient struct {
	ID               string   `json:"id"`
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	DateOfBirth      string   `json:"date_of_birth"`
	Gender           string   `json:"gender"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Address          string   `json:"address,omitempty"`
	EmergencyContact string   `json:"emergency_contact,omitempty"`
	Status           string   `json:"status"`
	Conditions       []string `json:"conditions"`
	Allergies        []string `json:"allergies"`
	CreatedAt        string   `json:"created_at"`
}

// Medication is one active prescription row.
type Medication struct {
	ID               string   `json:"id"`
	PatientID        string   `json:"patient_id"`
	Name             string   `json:"name"`
	Dosage           string   `json:"dosage"`
	Frequency        string   `json:"frequency"`
	Prescriber       string   `json:"prescriber"`
	Specialty        string   `json:"specialty"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date,omitempty"`
	Status           string   `json:"status"`
	Instructions     string   `json:"instructions,omitempty"`
	SideEffects      []string `json:"side_effects"`
	Interactions     []string `json:"interactions"`
	RefillsRemaining int      `json:"refills_remaining"`
}

// LowRefill reports whether the prescription should carry a low-refill
// warning. Derived on read, never stored.
func (m Medication) LowRefill() bool { return m.RefillsRemaining <= 1 }

// Appointment is one scheduled visit.
type Appointment struct {
	ID              string `json:"id"`
	PatientID       string `json:"patient_id"`
	ProviderName    string `json:"provider_name"`
	Specialty       string `json:"specialty"`
	Facility        string `json:"facility"`
	AppointmentDate string `json:"appointment_date"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes,omitempty"`
	Telehealth      bool   `json:"telehealth"`
}

// Upcoming reports whether the appointment is in the future relative to now.
// Derived at query time against the supplied clock so it can never go stale;
// malformed dates are treated as not upcoming.
func (a Appointment) Upcoming(now time.Time) bool {
	t, err := time.Parse(time.RFC3339, a.AppointmentDate)
	if err != nil {
		return false
	}
	return t.After(now)
}

// CareGap is a clinically-identified unmet recommended action. It is created
// by upstream detection and resolved at most once per id by a user action.
type CareGap struct {
	ID                 string `json:"id"`
	PatientID          string `json:"patient_id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Severity           string `json:"severity"`
	Category           string `json:"category"`
	GuidelineReference string `json:"guideline_reference"`
	RecommendedAction  string `json:"recommended_action"`
	DueDate            string `json:"due_date,omitempty"`
	DetectedAt         string `json:"detected_at"`
	Resolved           bool   `json:"resolved"`
	ResolvedAt         string `json:"resolved_at,omitempty"`
}

// ChatMessage is one entry in a session transcript. The transcript is
// strictly append-only and chronological.
type ChatMessage struct {
	ID        string                 `json:"id"`
	PatientID string                 `json:"patient_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	AgentName string                 `json:"agent_name,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AgentResponse is one agent's partial contribution to an orchestrated reply.
type AgentResponse struct {
	AgentName       string   `json:"agent_name"`
	Response        string   `json:"response"`
	Confidence      float64  `json:"confidence"`
	ActionsTaken    []string `json:"actions_taken"`
	Recommendations []string `json:"recommendations"`
}

// OrchestrationResult is the synthesized reply from the upstream multi-agent
// process to one chat turn. The side-channel fields may arrive populated;
// the orchestrator accepts them without acting on them synchronously.
type OrchestrationResult struct {
	PrimaryResponse        string          `json:"primary_response"`
	AgentContributions     []AgentResponse `json:"agent_contributions"`
	CareGapsDetected       []CareGap       `json:"care_gaps_detected,omitempty"`
	MedicationAlerts       []string        `json:"medication_alerts,omitempty"`
	AppointmentSuggestions []string        `json:"appointment_suggestions,omitempty"`
}

// AgentNames returns the contributing agent names in contribution order.
func (r OrchestrationResult) AgentNames() []string {
	names := make([]string, len(r.AgentContributions))
	for i, a := range r.AgentContributions {
		names[i] = a.AgentName
	}
	return names
}

// HealthSummary is a denormalized rollup computed upstream. The client never
// recomputes it from the live collections; it may lag them until the next
// refresh.
type HealthSummary struct {
	PatientID            string   `json:"patient_id"`
	OverallStatus        string   `json:"overall_status"`
	ActiveConditions     []string `json:"active_conditions"`
	ActiveMedications    int      `json:"active_medications"`
	UpcomingAppointments int      `json:"upcoming_appointments"`
	OpenCareGaps         int      `json:"open_care_gaps"`
	CriticalAlerts       []string `json:"critical_alerts"`
	LastUpdated          string   `json:"last_updated"`
}
