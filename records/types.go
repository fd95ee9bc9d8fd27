package records

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Practitioner is the clinician who ran a visit.
type Practitioner struct {
	FirstName string `yaml:"first_name" json:"first_name"`
	LastName  string `yaml:"last_name" json:"last_name"`
	Specialty string `yaml:"specialty" json:"specialty,omitempty"`
}

// VisitNote holds the structured SOAP sections of a visit note.
type VisitNote struct {
	ChiefComplaint          string `yaml:"chief_complaint" json:"chief_complaint,omitempty"`
	HistoryOfPresentIllness string `yaml:"history_of_present_illness" json:"history_of_present_illness,omitempty"`
	ReviewOfSystems         string `yaml:"review_of_systems" json:"review_of_systems,omitempty"`
	PhysicalExam            string `yaml:"physical_exam" json:"physical_exam,omitempty"`
	Assessment              string `yaml:"assessment" json:"assessment,omitempty"`
	Plan                    string `yaml:"plan" json:"plan,omitempty"`
	FollowUp                string `yaml:"follow_up" json:"follow_up,omitempty"`
}

// Transcript is the recorded conversation of a visit.
type Transcript struct {
	Clean string `yaml:"clean" json:"clean,omitempty"`
	Raw   string `yaml:"raw" json:"raw,omitempty"`
}

// Text returns the cleaned transcript, falling back to the raw one.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	if t.Clean != "" {
		return t.Clean
	}
	return t.Raw
}

// Observation is a test result or measurement taken during a visit.
type Observation struct {
	CodeDisplay    string         `yaml:"code_display" json:"code_display"`
	ValueType      string         `yaml:"value_type" json:"value_type,omitempty"`
	ValueQuantity  *float64       `yaml:"value_quantity" json:"value_quantity,omitempty"`
	ValueUnit      string         `yaml:"value_unit" json:"value_unit,omitempty"`
	ValueString    string         `yaml:"value_string" json:"value_string,omitempty"`
	Interpretation string         `yaml:"interpretation" json:"interpretation,omitempty"`
	ReferenceRange string         `yaml:"reference_range" json:"reference_range,omitempty"`
	Details        map[string]any `yaml:"details" json:"details,omitempty"`
}

// Allergy is a recorded patient allergy.
type Allergy struct {
	Name     string `yaml:"name" json:"name"`
	Severity string `yaml:"severity" json:"severity,omitempty"`
}

// Patient holds demographics and biometrics.
type Patient struct {
	ID        string     `yaml:"id" json:"id"`
	FirstName string     `yaml:"first_name" json:"first_name"`
	LastName  string     `yaml:"last_name" json:"last_name"`
	DOB       *time.Time `yaml:"dob" json:"dob,omitempty"`
	Gender    string     `yaml:"gender" json:"gender,omitempty"`
	HeightCM  float64    `yaml:"height_cm" json:"height_cm,omitempty"`
	WeightKG  float64    `yaml:"weight_kg" json:"weight_kg,omitempty"`
	BloodType string     `yaml:"blood_type" json:"blood_type,omitempty"`
	Allergies []Allergy  `yaml:"allergies" json:"allergies,omitempty"`
}

// Condition is a diagnosis attached to a visit.
type Condition struct {
	Code           string     `yaml:"code" json:"code"`
	Display        string     `yaml:"display" json:"display"`
	ClinicalStatus string     `yaml:"clinical_status" json:"clinical_status,omitempty"`
	Severity       string     `yaml:"severity" json:"severity,omitempty"`
	Onset          *time.Time `yaml:"onset" json:"onset,omitempty"`
	Notes          string     `yaml:"notes" json:"notes,omitempty"`
}

// Medication is the drug referenced by a prescription.
type Medication struct {
	GenericName       string   `yaml:"generic_name" json:"generic_name"`
	DisplayName       string   `yaml:"display_name" json:"display_name"`
	BrandNames        []string `yaml:"brand_names" json:"brand_names,omitempty"`
	PregnancyCategory string   `yaml:"pregnancy_category" json:"pregnancy_category,omitempty"`
	BlackBoxWarning   bool     `yaml:"black_box_warning" json:"black_box_warning,omitempty"`
}

// Prescription statuses.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// Prescription is a medication order written during a visit.
type Prescription struct {
	Medication          *Medication `yaml:"medication" json:"medication,omitempty"`
	Status              string      `yaml:"status" json:"status"`
	DoseQuantity        string      `yaml:"dose_quantity" json:"dose_quantity,omitempty"`
	DoseUnit            string      `yaml:"dose_unit" json:"dose_unit,omitempty"`
	Route               string      `yaml:"route" json:"route,omitempty"`
	Frequency           string      `yaml:"frequency" json:"frequency,omitempty"`
	FrequencyText       string      `yaml:"frequency_text" json:"frequency_text,omitempty"`
	SpecialInstructions string      `yaml:"special_instructions" json:"special_instructions,omitempty"`
	Indication          string      `yaml:"indication" json:"indication,omitempty"`
}

// Active reports whether the prescription is currently in effect.
func (p Prescription) Active() bool {
	return p.Status == StatusActive
}

// Visit is the aggregate the AI core reasons over.
type Visit struct {
	ID            string         `yaml:"id" json:"id"`
	StartedAt     *time.Time     `yaml:"started_at" json:"started_at,omitempty"`
	VisitType     string         `yaml:"visit_type" json:"visit_type,omitempty"`
	Reason        string         `yaml:"reason" json:"reason,omitempty"`
	Practitioner  *Practitioner  `yaml:"practitioner" json:"practitioner,omitempty"`
	Note          *VisitNote     `yaml:"note" json:"note,omitempty"`
	Transcript    *Transcript    `yaml:"transcript" json:"transcript,omitempty"`
	Observations  []Observation  `yaml:"observations" json:"observations,omitempty"`
	Patient       *Patient       `yaml:"patient" json:"patient,omitempty"`
	Conditions    []Condition    `yaml:"conditions" json:"conditions,omitempty"`
	Prescriptions []Prescription `yaml:"prescriptions" json:"prescriptions,omitempty"`
}

// PatientID returns the visit's patient ID, or "" when there is no patient.
func (v *Visit) PatientID() string {
	if v == nil || v.Patient == nil {
		return ""
	}
	return v.Patient.ID
}

// Specialty returns the practitioner specialty, or "" when unknown.
func (v *Visit) Specialty() string {
	if v == nil || v.Practitioner == nil {
		return ""
	}
	return v.Practitioner.Specialty
}

// MedicationNames returns the generic names of all prescribed medications.
func (v *Visit) MedicationNames() []string {
	if v == nil {
		return nil
	}
	var names []string
	for _, rx := range v.Prescriptions {
		if rx.Medication != nil && rx.Medication.GenericName != "" {
			names = append(names, rx.Medication.GenericName)
		}
	}
	return names
}

// ConditionNames returns the display names of the visit's conditions.
func (v *Visit) ConditionNames() []string {
	if v == nil {
		return nil
	}
	names := make([]string, 0, len(v.Conditions))
	for _, c := range v.Conditions {
		names = append(names, c.Display)
	}
	return names
}

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one persisted turn of a chat session.
type ChatMessage struct {
	Role      string    `yaml:"role" json:"role"`
	Content   string    `yaml:"content" json:"content"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Session is a chat conversation about one visit.
type Session struct {
	ID       string        `yaml:"id" json:"id"`
	Visit    *Visit        `yaml:"-" json:"-"`
	VisitID  string        `yaml:"visit_id" json:"visit_id"`
	Messages []ChatMessage `yaml:"messages" json:"messages"`
}

// SessionSummary is the structured digest of a completed chat session,
// consumed by the longitudinal memory layer of later conversations.
type SessionSummary struct {
	ID               string    `json:"id"`
	PatientID        string    `json:"patient_id"`
	VisitID          string    `json:"visit_id,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	SummaryText      string    `json:"summary_text"`
	KeyQuestions     []string  `json:"key_questions"`
	ConcernsRaised   []string  `json:"concerns_raised"`
	FollowupItems    []string  `json:"followup_items"`
	EmotionalContext string    `json:"emotional_context,omitempty"`
	TokenCount       int       `json:"token_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// VisitRepository loads visits with their related records.
type VisitRepository interface {
	Visit(ctx context.Context, id string) (*Visit, error)
}

// SessionRepository loads and appends to chat sessions.
type SessionRepository interface {
	Session(ctx context.Context, id string) (*Session, error)
	AppendMessage(ctx context.Context, sessionID string, msg ChatMessage) error
}
