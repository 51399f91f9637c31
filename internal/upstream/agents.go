package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/careorbit/dashboard/internal/format"
	"github.com/careorbit/dashboard/internal/model"
)

// Agent is one specialized responder in the orchestration pipeline. An agent
// answers only within its domain; routing decides which agents see a message.
type Agent interface {
	Name() string
	Keywords() []string
	Respond(ctx context.Context, store *Store, patientID, message string) model.AgentResponse
}

// Orchestrator routes a chat message to the matching agents, collects their
// contributions, and synthesizes the primary response. When no keyword
// matches, the health-insights agent answers alone.
type Orchestrator struct {
	agents  []Agent
	refiner Refiner
	store   *Store
	log     zerolog.Logger
}

func NewOrchestrator(store *Store, refiner Refiner, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		agents: []Agent{
			&medicationAgent{},
			&appointmentAgent{},
			&careGapAgent{},
			&healthInsightsAgent{},
		},
		refiner: refiner,
		store:   store,
		log:     log,
	}
}

// Process runs one chat turn through the agent pipeline.
func (o *Orchestrator) Process(ctx context.Context, patientID, message string) (*model.OrchestrationResult, error) {
	if _, ok := o.store.Patient(patientID); !ok {
		return nil, fmt.Errorf("unknown patient %q", patientID)
	}

	lower := strings.ToLower(message)
	var matched []Agent
	for _, a := range o.agents {
		for _, kw := range a.Keywords() {
			if strings.Contains(lower, kw) {
				matched = append(matched, a)
				break
			}
		}
	}
	if len(matched) == 0 {
		matched = []Agent{o.agents[len(o.agents)-1]}
	}

	result := &model.OrchestrationResult{}
	for _, a := range matched {
		contrib := a.Respond(ctx, o.store, patientID, message)
		result.AgentContributions = append(result.AgentContributions, contrib)
	}
	result.PrimaryResponse = synthesize(result.AgentContributions)

	if o.refiner != nil {
		refined, err := o.refiner.Refine(ctx, message, result.PrimaryResponse)
		if err != nil {
			o.log.Warn().Err(err).Msg("response refinement failed, using synthesized text")
		} else if refined != "" {
			result.PrimaryResponse = refined
		}
	}
	return result, nil
}

// synthesize joins the contributions, highest confidence first.
func synthesize(contributions []model.AgentResponse) string {
	ordered := append([]model.AgentResponse(nil), contributions...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Confidence > ordered[j-1].Confidence; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	parts := make([]string, 0, len(ordered))
	for _, c := range ordered {
		parts = append(parts, c.Response)
	}
	return strings.Join(parts, " ")
}

type medicationAgent struct{}

func (a *medicationAgent) Name() string { return "medication-agent" }
func (a *medicationAgent) Keywords() []string {
	return []string{"medication", "medicine", "prescription", "refill", "drug", "dose", "pill"}
}

func (a *medicationAgent) Respond(ctx context.Context, store *Store, patientID, message string) model.AgentResponse {
	meds, _ := store.Medications(patientID, true)

	var names []string
	var recs []string
	for _, m := range meds {
		names = append(names, fmt.Sprintf("%s %s (%s)", m.Name, m.Dosage, format.Frequency(m.Frequency)))
		if m.LowRefill() {
			recs = append(recs, fmt.Sprintf("Request a refill for %s (%d remaining)", m.Name, m.RefillsRemaining))
		}
	}

	resp := model.AgentResponse{
		AgentName:       a.Name(),
		Confidence:      0.9,
		Recommendations: recs,
	}
	if len(names) == 0 {
		resp.Response = "You have no active medications on record."
		return resp
	}
	resp.Response = fmt.Sprintf("You are currently taking %d active medications: %s.",
		len(names), strings.Join(names, ", "))
	return resp
}

type appointmentAgent struct{}

func (a *appointmentAgent) Name() string { return "appointment-agent" }
func (a *appointmentAgent) Keywords() []string {
	return []string{"appointment", "schedule", "visit", "doctor", "clinic", "telehealth"}
}

func (a *appointmentAgent) Respond(ctx context.Context, store *Store, patientID, message string) model.AgentResponse {
	appts, _ := store.Appointments(patientID, true)

	resp := model.AgentResponse{
		AgentName:  a.Name(),
		Confidence: 0.85,
	}
	if len(appts) == 0 {
		resp.Response = "You have no upcoming appointments."
		resp.Recommendations = []string{"Schedule a check-up with your primary care provider"}
		return resp
	}

	now := store.clock()
	var lines []string
	for _, ap := range appts {
		when := ap.AppointmentDate
		if t, err := time.Parse(time.RFC3339, ap.AppointmentDate); err == nil {
			when = format.RelativeDate(now, t)
		}
		lines = append(lines, fmt.Sprintf("%s with %s (%s)", when, ap.ProviderName, ap.Specialty))
	}
	resp.Response = fmt.Sprintf("You have %d upcoming appointments: %s.",
		len(appts), strings.Join(lines, "; "))
	return resp
}

type careGapAgent struct{}

func (a *careGapAgent) Name() string { return "care-gap-agent" }
func (a *careGapAgent) Keywords() []string {
	return []string{"care gap", "screening", "overdue", "preventive", "vaccine", "vaccination", "exam"}
}

func (a *careGapAgent) Respond(ctx context.Context, store *Store, patientID, message string) model.AgentResponse {
	gaps, _ := store.CareGaps(patientID)

	resp := model.AgentResponse{
		AgentName:  a.Name(),
		Confidence: 0.8,
	}
	if len(gaps) == 0 {
		resp.Response = "You are up to date on all recommended care."
		return resp
	}

	var lines []string
	var recs []string
	for _, g := range gaps {
		lines = append(lines, fmt.Sprintf("%s (%s severity)", g.Title, g.Severity))
		recs = append(recs, g.RecommendedAction)
	}
	resp.Response = fmt.Sprintf("You have %d open care gaps: %s.",
		len(gaps), strings.Join(lines, "; "))
	resp.Recommendations = recs
	return resp
}

// healthInsightsAgent is the fallback responder for general questions.
type healthInsightsAgent struct{}

func (a *healthInsightsAgent) Name() string { return "health-insights-agent" }
func (a *healthInsightsAgent) Keywords() []string {
	return []string{"health", "condition", "summary", "status", "how am i"}
}

func (a *healthInsightsAgent) Respond(ctx context.Context, store *Store, patientID, message string) model.AgentResponse {
	sum, _ := store.Summary(patientID)

	resp := model.AgentResponse{
		AgentName:  a.Name(),
		Confidence: 0.7,
	}
	resp.Response = fmt.Sprintf(
		"Your overall health status is %s, with %d active conditions, %d active medications, %d upcoming appointments, and %d open care gaps.",
		sum.OverallStatus, len(sum.ActiveConditions), sum.ActiveMedications,
		sum.UpcomingAppointments, sum.OpenCareGaps)
	if len(sum.CriticalAlerts) > 0 {
		resp.Recommendations = sum.CriticalAlerts
	}
	return resp
}
