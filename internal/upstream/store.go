// Package upstream implements the demo care-coordination API the dashboard
// talks to: an in-memory store of seeded clinical data plus a keyword-routed
// multi-agent chat pipeline. It exists for local development, integration
// testing, and demos; nothing here persists.
package upstream

import (
	"sync"
	"time"

	"github.com/careorbit/dashboard/internal/model"
)

// Store holds the seeded clinical data for the demo patients.
type Store struct {
	mu           sync.RWMutex
	patients     map[string]model.Patient
	medications  map[string][]model.Medication
	appointments map[string][]model.Appointment
	careGaps     map[string][]model.CareGap
	clock        func() time.Time
}

// NewStore returns a store seeded with the demo patient.
func NewStore() *Store {
	s := &Store{
		patients:     make(map[string]model.Patient),
		medications:  make(map[string][]model.Medication),
		appointments: make(map[string][]model.Appointment),
		careGaps:     make(map[string][]model.CareGap),
		clock:        time.Now,
	}
	s.seed()
	return s
}

// SetClock replaces the store clock. Tests use it to pin "now".
func (s *Store) SetClock(clock func() time.Time) { s.clock = clock }

func (s *Store) seed() {
	now := time.Now().UTC()
	iso := func(d time.Duration) string { return now.Add(d).Format(time.RFC3339) }

	s.patients["patient-001"] = model.Patient{
		ID:               "patient-001",
		FirstName:        "Sarah",
		LastName:         "Johnson",
		DateOfBirth:      "1985-03-15",
		Gender:           "female",
		Email:            "sarah.johnson@example.com",
		Phone:            "(555) 123-4567",
		Address:          "123 Main St, Springfield, IL 62701",
		EmergencyContact: "Michael Johnson (555) 987-6543",
		Status:           "active",
		Conditions:       []string{"Type 2 Diabetes", "Hypertension", "Hyperlipidemia"},
		Allergies:        []string{"Penicillin", "Sulfa drugs"},
		CreatedAt:        iso(-365 * 24 * time.Hour),
	}

	s.medications["patient-001"] = []model.Medication{
		{
			ID: "med-001", PatientID: "patient-001",
			Name: "Metformin", Dosage: "500mg", Frequency: "twice daily",
			Prescriber: "Dr. Emily Chen", Specialty: "Endocrinology",
			StartDate: "2023-01-10", Status: model.MedicationActive,
			Instructions:     "Take with meals",
			SideEffects:      []string{"Nausea", "Diarrhea"},
			Interactions:     []string{"Alcohol", "Contrast dye"},
			RefillsRemaining: 2,
		},
		{
			ID: "med-002", PatientID: "patient-001",
			Name: "Lisinopril", Dosage: "10mg", Frequency: "once daily",
			Prescriber: "Dr. James Wilson", Specialty: "Cardiology",
			StartDate: "2023-03-22", Status: model.MedicationActive,
			Instructions:     "Take in the morning",
			SideEffects:      []string{"Dry cough", "Dizziness"},
			Interactions:     []string{"Potassium supplements", "NSAIDs"},
			RefillsRemaining: 1,
		},
		{
			ID: "med-003", PatientID: "patient-001",
			Name: "Atorvastatin", Dosage: "20mg", Frequency: "once daily at bedtime",
			Prescriber: "Dr. James Wilson", Specialty: "Cardiology",
			StartDate: "2023-03-22", Status: model.MedicationActive,
			SideEffects:      []string{"Muscle pain"},
			Interactions:     []string{"Grapefruit juice"},
			RefillsRemaining: 3,
		},
		{
			ID: "med-004", PatientID: "patient-001",
			Name: "Ibuprofen", Dosage: "400mg", Frequency: "as needed",
			Prescriber: "Dr. Emily Chen", Specialty: "Endocrinology",
			StartDate: "2022-06-01", EndDate: "2022-08-01",
			Status:           model.MedicationStopped,
			SideEffects:      []string{"Stomach upset"},
			Interactions:     []string{"Lisinopril"},
			RefillsRemaining: 0,
		},
	}

	s.appointments["patient-001"] = []model.Appointment{
		{
			ID: "appt-001", PatientID: "patient-001",
			ProviderName: "Dr. Emily Chen", Specialty: "Endocrinology",
			Facility:        "Springfield Diabetes Center",
			AppointmentDate: iso(7 * 24 * time.Hour),
			DurationMinutes: 30, Status: model.AppointmentScheduled,
			Reason: "Diabetes follow-up",
		},
		{
			ID: "appt-002", PatientID: "patient-001",
			ProviderName: "Dr. James Wilson", Specialty: "Cardiology",
			Facility:        "Heart Health Clinic",
			AppointmentDate: iso(21 * 24 * time.Hour),
			DurationMinutes: 45, Status: model.AppointmentScheduled,
			Reason: "Blood pressure review", Telehealth: true,
		},
		{
			ID: "appt-003", PatientID: "patient-001",
			ProviderName: "Dr. Maria Lopez", Specialty: "Primary Care",
			Facility:        "Springfield Family Medicine",
			AppointmentDate: iso(-30 * 24 * time.Hour),
			DurationMinutes: 30, Status: model.AppointmentCompleted,
			Reason: "Annual physical", Notes: "All vitals within normal range",
		},
	}

	s.careGaps["patient-001"] = []model.CareGap{
		{
			ID: "gap-001", PatientID: "patient-001",
			Title:              "Annual diabetic eye exam overdue",
			Description:        "No dilated retinal exam on record in the last 12 months.",
			Severity:           model.SeverityHigh,
			Category:           "screening",
			GuidelineReference: "ADA Standards of Care 2024, S12",
			RecommendedAction:  "Schedule ophthalmology referral",
			DueDate:            iso(14 * 24 * time.Hour),
			DetectedAt:         iso(-10 * 24 * time.Hour),
		},
		{
			ID: "gap-002", PatientID: "patient-001",
			Title:              "HbA1c test due",
			Description:        "Last HbA1c result is older than 6 months.",
			Severity:           model.SeverityMedium,
			Category:           "lab",
			GuidelineReference: "ADA Standards of Care 2024, S6",
			RecommendedAction:  "Order HbA1c panel",
			DueDate:            iso(30 * 24 * time.Hour),
			DetectedAt:         iso(-5 * 24 * time.Hour),
		},
		{
			ID: "gap-003", PatientID: "patient-001",
			Title:              "Influenza vaccination",
			Description:        "No influenza vaccine recorded for the current season.",
			Severity:           model.SeverityLow,
			Category:           "immunization",
			GuidelineReference: "CDC ACIP 2024",
			RecommendedAction:  "Administer seasonal flu vaccine",
			DetectedAt:         iso(-2 * 24 * time.Hour),
		},
	}
}

// Patient returns the patient record, or false if unknown.
func (s *Store) Patient(id string) (model.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	return p, ok
}

// Medications returns the patient's prescriptions, optionally active only.
func (s *Store) Medications(patientID string, activeOnly bool) ([]model.Medication, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.patients[patientID]; !ok {
		return nil, false
	}
	out := []model.Medication{}
	for _, m := range s.medications[patientID] {
		if activeOnly && m.Status != model.MedicationActive {
			continue
		}
		out = append(out, m)
	}
	return out, true
}

// Appointments returns the patient's visits, optionally upcoming only.
func (s *Store) Appointments(patientID string, upcomingOnly bool) ([]model.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.patients[patientID]; !ok {
		return nil, false
	}
	now := s.clock()
	out := []model.Appointment{}
	for _, a := range s.appointments[patientID] {
		if upcomingOnly && !a.Upcoming(now) {
			continue
		}
		out = append(out, a)
	}
	return out, true
}

// CareGaps returns the patient's unresolved care gaps.
func (s *Store) CareGaps(patientID string) ([]model.CareGap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.patients[patientID]; !ok {
		return nil, false
	}
	out := []model.CareGap{}
	for _, g := range s.careGaps[patientID] {
		if !g.Resolved {
			out = append(out, g)
		}
	}
	return out, true
}

// ResolveCareGap marks a gap resolved. Reports whether the gap exists.
// Resolving an already-resolved gap is a no-op that still succeeds.
func (s *Store) ResolveCareGap(gapID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for patientID, gaps := range s.careGaps {
		for i := range gaps {
			if gaps[i].ID != gapID {
				continue
			}
			if !gaps[i].Resolved {
				gaps[i].Resolved = true
				gaps[i].ResolvedAt = s.clock().UTC().Format(time.RFC3339)
				s.careGaps[patientID] = gaps
			}
			return true
		}
	}
	return false
}

// Summary computes the denormalized health rollup for a patient.
func (s *Store) Summary(patientID string) (model.HealthSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[patientID]
	if !ok {
		return model.HealthSummary{}, false
	}

	sum := model.HealthSummary{
		PatientID:        patientID,
		ActiveConditions: append([]string(nil), p.Conditions...),
		CriticalAlerts:   []string{},
		LastUpdated:      s.clock().UTC().Format(time.RFC3339),
	}
	for _, m := range s.medications[patientID] {
		if m.Status == model.MedicationActive {
			sum.ActiveMedications++
			if m.LowRefill() {
				sum.CriticalAlerts = append(sum.CriticalAlerts, m.Name+" running low on refills")
			}
		}
	}
	now := s.clock()
	for _, a := range s.appointments[patientID] {
		if a.Upcoming(now) {
			sum.UpcomingAppointments++
		}
	}
	highest := ""
	for _, g := range s.careGaps[patientID] {
		if g.Resolved {
			continue
		}
		sum.OpenCareGaps++
		if g.Severity == model.SeverityCritical || g.Severity == model.SeverityHigh {
			highest = g.Severity
			sum.CriticalAlerts = append(sum.CriticalAlerts, g.Title)
		}
	}
	switch {
	case highest == model.SeverityCritical:
		sum.OverallStatus = "needs attention"
	case sum.OpenCareGaps > 0:
		sum.OverallStatus = "fair"
	default:
		sum.OverallStatus = "stable"
	}
	return sum, true
}
