package assembler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/postvisit/carecore/records"
)

const (
	visitDateLayout   = "2006-01-02 15:04"
	dayLayout         = "2006-01-02"
	sessionDateLayout = "Jan 2, 2006"
)

// transcriptPlaceholder marks a transcript that was never processed.
const transcriptPlaceholder = "PLACEHOLDER"

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatVisit renders the visit-data layer. transcript is passed in already
// capped by the caller.
func formatVisit(v *records.Visit, transcript string) string {
	parts := []string{"--- VISIT DATA ---"}

	date := "Unknown"
	if v.StartedAt != nil {
		date = v.StartedAt.Format(visitDateLayout)
	}
	parts = append(parts,
		"Visit Date: "+date,
		"Visit Type: "+orDefault(v.VisitType, "General"),
		"Reason for Visit: "+orDefault(v.Reason, "Not specified"),
	)

	if p := v.Practitioner; p != nil {
		parts = append(parts,
			fmt.Sprintf("Practitioner: Dr. %s %s", p.FirstName, p.LastName),
			"Specialty: "+orDefault(p.Specialty, "General"),
		)
	}

	if n := v.Note; n != nil {
		if n.ChiefComplaint != "" {
			parts = append(parts, "\nChief Complaint: "+n.ChiefComplaint)
		}
		sections := []struct{ title, body string }{
			{"History of Present Illness", n.HistoryOfPresentIllness},
			{"Review of Systems", n.ReviewOfSystems},
			{"Physical Examination", n.PhysicalExam},
			{"Assessment", n.Assessment},
			{"Plan", n.Plan},
			{"Follow-up", n.FollowUp},
		}
		for _, s := range sections {
			if s.body != "" {
				parts = append(parts, fmt.Sprintf("\n%s:\n%s", s.title, s.body))
			}
		}
	}

	if transcript != "" && !strings.HasPrefix(transcript, transcriptPlaceholder) {
		parts = append(parts, "\nVisit Transcript:\n"+transcript)
	}

	if len(v.Observations) > 0 {
		parts = append(parts, "\nTest Results & Observations:")
		for _, obs := range v.Observations {
			parts = append(parts, formatObservation(obs)...)
		}
	}

	parts = append(parts, "--- END VISIT DATA ---")
	return strings.Join(parts, "\n")
}

func formatObservation(obs records.Observation) []string {
	value := obs.ValueString
	if obs.ValueType == "quantity" {
		q := ""
		if obs.ValueQuantity != nil {
			q = formatNumber(*obs.ValueQuantity)
		}
		value = strings.TrimSpace(q + " " + obs.ValueUnit)
	}

	line := fmt.Sprintf("- %s: %s", obs.CodeDisplay, value)
	if obs.Interpretation != "" {
		line += fmt.Sprintf(" (interpretation: %s)", obs.Interpretation)
	}
	if obs.ReferenceRange != "" {
		line += fmt.Sprintf(" [ref: %s]", obs.ReferenceRange)
	}

	lines := []string{line}
	if len(obs.Details) > 0 {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(obs.Details); err == nil {
			lines = append(lines, "  Details: "+strings.TrimSpace(buf.String()))
		}
	}
	return lines
}

// formatPatient renders the patient-record layer.
func formatPatient(v *records.Visit) string {
	p := v.Patient
	if p == nil {
		return "--- PATIENT RECORD ---\nNo patient record available.\n--- END PATIENT RECORD ---"
	}

	parts := []string{"--- PATIENT RECORD ---"}
	dob := "Unknown"
	if p.DOB != nil {
		dob = p.DOB.Format(dayLayout)
	}
	parts = append(parts,
		strings.TrimSpace(fmt.Sprintf("Name: %s %s", p.FirstName, p.LastName)),
		"Date of Birth: "+dob,
		"Gender: "+orDefault(p.Gender, "Unknown"),
	)

	if p.HeightCM > 0 {
		parts = append(parts, fmt.Sprintf("Height: %s cm", formatNumber(p.HeightCM)))
	}
	if p.WeightKG > 0 {
		parts = append(parts, fmt.Sprintf("Weight: %s kg", formatNumber(p.WeightKG)))
		if p.HeightCM > 0 {
			meters := p.HeightCM / 100
			bmi := math.Round(p.WeightKG/(meters*meters)*10) / 10
			parts = append(parts, "BMI: "+formatNumber(bmi))
		}
	}
	if p.BloodType != "" {
		parts = append(parts, "Blood Type: "+p.BloodType)
	}

	if len(p.Allergies) > 0 {
		parts = append(parts, "\nAllergies:")
		for _, a := range p.Allergies {
			line := "- " + orDefault(a.Name, "Unknown")
			if a.Severity != "" {
				line += " (" + a.Severity + ")"
			}
			parts = append(parts, line)
		}
	}

	if len(v.Conditions) > 0 {
		parts = append(parts, "\nKnown Conditions:")
		for _, c := range v.Conditions {
			line := fmt.Sprintf("- %s (%s)", c.Display, c.Code)
			if c.ClinicalStatus != "" {
				line += " | status: " + c.ClinicalStatus
			}
			if c.Severity != "" {
				line += ", severity: " + c.Severity
			}
			if c.Onset != nil {
				line += ", onset: " + c.Onset.Format(dayLayout)
			}
			if c.Notes != "" {
				line += "\n  Notes: " + c.Notes
			}
			parts = append(parts, line)
		}
	}

	var active []string
	for _, rx := range v.Prescriptions {
		if !rx.Active() {
			continue
		}
		name := "Unknown medication"
		if rx.Medication != nil {
			name = rx.Medication.GenericName
		}
		line := fmt.Sprintf("- %s %s%s %s", name, rx.DoseQuantity, rx.DoseUnit, rx.Frequency)
		line = strings.TrimRight(line, " ")
		if rx.FrequencyText != "" {
			line += " (" + rx.FrequencyText + ")"
		}
		if rx.SpecialInstructions != "" {
			line += "\n  Instructions: " + rx.SpecialInstructions
		}
		active = append(active, line)
	}
	if len(active) > 0 {
		parts = append(parts, "\nCurrent Medications:")
		parts = append(parts, active...)
	}

	parts = append(parts, "--- END PATIENT RECORD ---")
	return strings.Join(parts, "\n")
}

// formatMedication renders one prescription of the medications layer.
// It returns "" for prescriptions without a medication record.
func formatMedication(rx records.Prescription) string {
	med := rx.Medication
	if med == nil {
		return ""
	}

	parts := []string{fmt.Sprintf("\nMedication: %s (%s)", med.GenericName, orDefault(med.DisplayName, med.GenericName))}
	if len(med.BrandNames) > 0 {
		parts = append(parts, "Brand Names: "+strings.Join(med.BrandNames, ", "))
	}
	parts = append(parts,
		fmt.Sprintf("Prescribed Dose: %s%s", rx.DoseQuantity, rx.DoseUnit),
		"Route: "+orDefault(rx.Route, "oral"),
		"Frequency: "+orDefault(rx.Frequency, "as directed"),
	)
	if rx.SpecialInstructions != "" {
		parts = append(parts, "Special Instructions: "+rx.SpecialInstructions)
	}
	if rx.Indication != "" {
		parts = append(parts, "Indication: "+rx.Indication)
	}
	if med.PregnancyCategory != "" {
		parts = append(parts, "Pregnancy Category: "+med.PregnancyCategory)
	}
	if med.BlackBoxWarning {
		parts = append(parts, "WARNING: This medication has a black box warning.")
	}
	return strings.Join(parts, "\n")
}

// formatSummaries renders the longitudinal memory layer.
func formatSummaries(summaries []records.SessionSummary) string {
	parts := []string{
		"--- PREVIOUS SESSION CONTEXT ---",
		"The following summaries are from previous chat sessions with this patient:",
	}
	for _, s := range summaries {
		date := "Unknown date"
		if !s.CreatedAt.IsZero() {
			date = s.CreatedAt.Format(sessionDateLayout)
		}
		parts = append(parts, "", fmt.Sprintf("Session (%s):", date), s.SummaryText)
		if len(s.KeyQuestions) > 0 {
			parts = append(parts, "Key questions asked: "+strings.Join(s.KeyQuestions, "; "))
		}
		if len(s.ConcernsRaised) > 0 {
			parts = append(parts, "Concerns raised: "+strings.Join(s.ConcernsRaised, "; "))
		}
		if len(s.FollowupItems) > 0 {
			parts = append(parts, "Follow-up items: "+strings.Join(s.FollowupItems, "; "))
		}
		if s.EmotionalContext != "" {
			parts = append(parts, "Emotional context: "+s.EmotionalContext)
		}
	}
	parts = append(parts, "--- END PREVIOUS SESSION CONTEXT ---")
	return strings.Join(parts, "\n")
}
