package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/truncate"
)

// Excerpt limits for label sections, in characters.
const (
	longExcerpt   = 800
	mediumExcerpt = 600
	shortExcerpt  = 400
)

// Report counts requested from the drug lookup.
const (
	coReportedLimit = 10
	safetyLimit     = 15
)

const (
	errInteractionUnavailable = "Unable to retrieve interaction data. Use clinical knowledge as fallback."
	errSafetyUnavailable      = "Unable to retrieve safety data. Use clinical knowledge as fallback."
	errLabNotFound            = "Lab test not found in reference database. Use clinical knowledge for reference ranges."
	noLabelWarning            = "No FDA label data found for this drug name."
)

// Dispatcher executes tool calls.
type Dispatcher struct {
	drugs  DrugLookup
	labs   *LabTable
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLabTable replaces the embedded lab reference table.
func WithLabTable(t *LabTable) Option {
	return func(d *Dispatcher) { d.labs = t }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher over a drug lookup.
func NewDispatcher(drugs DrugLookup, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		drugs:  drugs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.labs == nil {
		d.labs = DefaultLabTable()
	}
	return d
}

// Execute runs one tool call. It never fails; problems are reported in the
// returned Result.
func (d *Dispatcher) Execute(ctx context.Context, name string, input json.RawMessage) Result {
	d.logger.Info("tool execution", slog.String("tool", name), slog.String("input", string(input)))

	switch name {
	case CheckDrugInteraction:
		var in InteractionInput
		if err := decodeInput(input, &in); err != nil {
			return failed(name, err.Error())
		}
		return d.CheckInteraction(ctx, in)
	case GetDrugSafetyInfo:
		var in SafetyInput
		if err := decodeInput(input, &in); err != nil {
			return failed(name, err.Error())
		}
		return d.SafetyInfo(ctx, in)
	case GetLabReferenceRange:
		var in LabRangeInput
		if err := decodeInput(input, &in); err != nil {
			return failed(name, err.Error())
		}
		return d.LabReferenceRange(in)
	default:
		return failed(name, "Unknown tool: "+name)
	}
}

// Executor adapts the dispatcher to the provider tool loop.
func (d *Dispatcher) Executor() provider.ToolExecutor {
	return func(ctx context.Context, call provider.ToolCall) json.RawMessage {
		res := d.Execute(ctx, call.Name, call.Input)
		data, err := json.Marshal(res)
		if err != nil {
			data, _ = json.Marshal(Failure{Error: fmt.Sprintf("encode %s result: %v", call.Name, err)})
		}
		return data
	}
}

func decodeInput(input json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("invalid tool input: %v", err)
	}
	return nil
}

// CheckInteraction reports co-reported adverse events and label
// interaction sections for a pair of drugs.
func (d *Dispatcher) CheckInteraction(ctx context.Context, in InteractionInput) Result {
	drug1, drug2 := strings.TrimSpace(in.Drug1), strings.TrimSpace(in.Drug2)
	if drug1 == "" || drug2 == "" {
		return failed(CheckDrugInteraction, "Both drug1 and drug2 are required")
	}

	res := &InteractionResult{Drug1: drug1, Drug2: drug2, Source: SourceOpenFDA}
	fail := func(err error) Result {
		d.logger.Warn("drug interaction check failed",
			slog.String("drug1", drug1), slog.String("drug2", drug2), slog.Any("error", err))
		return Result{Tool: CheckDrugInteraction, Interaction: &InteractionResult{
			Drug1: drug1, Drug2: drug2, Error: errInteractionUnavailable, Source: SourceOpenFDA,
		}}
	}

	events, err := d.drugs.CoReportedAdverseEvents(ctx, drug1, drug2, coReportedLimit)
	if err != nil {
		return fail(err)
	}
	res.CoReportedAdverseEvents = events.Events
	res.CoReportedTotal = events.Total

	for _, drug := range []string{drug1, drug2} {
		label, err := d.drugs.Label(ctx, drug)
		if err != nil {
			return fail(err)
		}
		if label != nil && label.DrugInteractions != "" {
			res.LabelInteractionWarnings = append(res.LabelInteractionWarnings, InteractionWarning{
				Drug:            drug,
				InteractionInfo: truncate.ToLength(label.DrugInteractions, longExcerpt),
			})
		}
	}
	return Result{Tool: CheckDrugInteraction, Interaction: res}
}

// SafetyInfo summarizes a drug's label and top adverse events.
func (d *Dispatcher) SafetyInfo(ctx context.Context, in SafetyInput) Result {
	drug := strings.TrimSpace(in.DrugName)
	if drug == "" {
		return failed(GetDrugSafetyInfo, "drug_name is required")
	}
	fail := func(err error) Result {
		d.logger.Warn("drug safety info lookup failed", slog.String("drug", drug), slog.Any("error", err))
		return Result{Tool: GetDrugSafetyInfo, Safety: &SafetyResult{
			DrugName: drug, Error: errSafetyUnavailable, Source: SourceOpenFDA,
		}}
	}

	label, err := d.drugs.Label(ctx, drug)
	if err != nil {
		return fail(err)
	}
	events, err := d.drugs.AdverseEvents(ctx, drug, safetyLimit)
	if err != nil {
		return fail(err)
	}

	res := &SafetyResult{DrugName: drug, Source: SourceOpenFDA}
	if label != nil {
		res.GenericName = label.GenericName
		res.BrandName = label.BrandName
		res.Manufacturer = label.Manufacturer
		res.Indications = truncate.ToLength(label.IndicationsAndUsage, mediumExcerpt)
		res.Warnings = truncate.ToLength(label.Warnings, longExcerpt)
		res.BoxedWarning = truncate.ToLength(label.BoxedWarning, mediumExcerpt)
		res.AdverseReactions = truncate.ToLength(label.AdverseReactions, longExcerpt)
		res.DrugInteractions = truncate.ToLength(label.DrugInteractions, longExcerpt)
		res.DosageInfo = truncate.ToLength(label.DosageAndAdministration, mediumExcerpt)
		res.PatientInfo = truncate.ToLength(label.InformationForPatients, mediumExcerpt)
		res.Pregnancy = truncate.ToLength(label.Pregnancy, shortExcerpt)
	} else {
		res.LabelWarning = noLabelWarning
	}
	if len(events.Events) > 0 {
		res.TopAdverseEvents = events.Events
		res.TotalAdverseReports = events.Total
	}
	return Result{Tool: GetDrugSafetyInfo, Safety: res}
}

// LabReferenceRange looks up a test in the lab table.
func (d *Dispatcher) LabReferenceRange(in LabRangeInput) Result {
	name := strings.TrimSpace(in.TestName)
	if name == "" {
		return failed(GetLabReferenceRange, "test_name is required")
	}

	r, matched, ok := d.labs.Lookup(name)
	if !ok {
		return Result{Tool: GetLabReferenceRange, LabRange: &LabRangeResult{
			TestName:       name,
			Error:          errLabNotFound,
			AvailableTests: d.labs.Keys(),
		}}
	}
	return Result{Tool: GetLabReferenceRange, LabRange: &LabRangeResult{
		TestName:   name,
		MatchedKey: matched,
		Data:       &r,
		Source:     SourceLabRanges,
	}}
}
