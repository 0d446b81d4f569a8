package quizai

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// StepType decides which worker executes a step.
type StepType string

const (
	StepTypeResearch   StepType = "research"
	StepTypeProcessing StepType = "processing"
)

// Step is one unit of work in a Plan. An empty ExecutionRes means pending.
type Step struct {
	Title        string   `json:"title" description:"Step title" required:"true"`
	Description  string   `json:"description" description:"Specify exactly what data to collect or what to compute" required:"true"`
	StepType     StepType `json:"step_type" description:"Nature of the step" enum:"research,processing" required:"true"`
	ExecutionRes string   `json:"execution_res,omitempty" description:"The step execution result"`
}

// Done reports whether a worker has already stored a result for the step.
func (s *Step) Done() bool {
	return s.ExecutionRes != ""
}

// Plan is a research plan produced by the planner.
type Plan struct {
	Locale           string `json:"locale" description:"e.g. 'en-US' or 'zh-CN', based on the user's language" required:"true"`
	HasEnoughContext bool   `json:"has_enough_context" required:"true"`
	Thought          string `json:"thought" required:"true"`
	Title            string `json:"title" required:"true"`
	Steps            []Step `json:"steps,omitempty" description:"Research & Processing steps to get more context"`
}

// FirstIncompleteStep returns the first step without a result, or nil.
func (p *Plan) FirstIncompleteStep() *Step {
	if p == nil {
		return nil
	}
	for i := range p.Steps {
		if !p.Steps[i].Done() {
			return &p.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = append([]Step(nil), p.Steps...)
	return &c
}

// Validate checks the plan against the plan schema.
func (p *Plan) Validate() error {
	raw, err := json.Marshal(p)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal plan")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return goerr.Wrap(ErrParse, "failed to decode plan", goerr.V("error", err.Error()))
	}
	return validatePlanInstance(inst)
}

// PlanSchema is the JSON schema of Plan, used for structured output and
// validation.
func PlanSchema() *Parameter {
	return planSchema
}

var planSchema = func() *Parameter {
	p := MustToSchema(Plan{})
	p.Title = "Plan"
	return p
}()

var (
	compiledPlanSchema     *jsonschema.Schema
	compiledPlanSchemaErr  error
	compiledPlanSchemaOnce sync.Once
)

func compilePlanSchema() (*jsonschema.Schema, error) {
	compiledPlanSchemaOnce.Do(func() {
		raw, err := json.Marshal(planSchema.JSONSchema())
		if err != nil {
			compiledPlanSchemaErr = goerr.Wrap(err, "failed to marshal plan schema")
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			compiledPlanSchemaErr = goerr.Wrap(err, "failed to decode plan schema")
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("plan.json", doc); err != nil {
			compiledPlanSchemaErr = goerr.Wrap(err, "failed to add plan schema")
			return
		}
		compiledPlanSchema, compiledPlanSchemaErr = c.Compile("plan.json")
	})
	return compiledPlanSchema, compiledPlanSchemaErr
}

func validatePlanInstance(inst any) error {
	schema, err := compilePlanSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(inst); err != nil {
		return goerr.Wrap(ErrValidation, "plan schema violation", goerr.V("reason", err.Error()))
	}
	return nil
}

// ParsePlan repairs raw model output and decodes it into a validated Plan.
// It fails with ErrParse when the text is not JSON even after repair and
// with ErrValidation when it is JSON of the wrong shape.
func ParsePlan(raw string) (*Plan, error) {
	repaired := RepairJSON(raw)

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(repaired))
	if err != nil {
		return nil, goerr.Wrap(ErrParse, "plan is not JSON", goerr.V("raw", raw), goerr.V("error", err.Error()))
	}
	if err := validatePlanInstance(inst); err != nil {
		return nil, goerr.Wrap(err, "invalid plan", goerr.V("raw", raw))
	}

	var plan Plan
	if err := json.Unmarshal([]byte(repaired), &plan); err != nil {
		return nil, goerr.Wrap(ErrValidation, "failed to decode plan", goerr.V("raw", raw), goerr.V("error", err.Error()))
	}
	return &plan, nil
}

// PlanValue is the current_plan slot of the state. It is empty, raw model
// text waiting for review, or a validated plan.
type PlanValue struct {
	raw  string
	plan *Plan
	set  bool
}

// RawPlan wraps unparsed planner output.
func RawPlan(text string) PlanValue {
	return PlanValue{raw: text, set: true}
}

// ValidatedPlan wraps a parsed plan.
func ValidatedPlan(p *Plan) PlanValue {
	return PlanValue{plan: p, set: p != nil}
}

// IsZero reports whether no plan has been produced yet.
func (v PlanValue) IsZero() bool {
	return !v.set
}

// Raw returns the raw text when the value holds unparsed output.
func (v PlanValue) Raw() (string, bool) {
	return v.raw, v.set && v.plan == nil
}

// Plan returns the validated plan when the value holds one.
func (v PlanValue) Plan() (*Plan, bool) {
	return v.plan, v.plan != nil
}

// Text returns the raw text, or the JSON form of a validated plan.
func (v PlanValue) Text() string {
	if v.plan != nil {
		b, err := json.Marshal(v.plan)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return v.raw
}

type planValueJSON struct {
	Raw  *string `json:"raw,omitempty"`
	Plan *Plan   `json:"plan,omitempty"`
}

func (v PlanValue) MarshalJSON() ([]byte, error) {
	switch {
	case !v.set:
		return []byte("null"), nil
	case v.plan != nil:
		return json.Marshal(planValueJSON{Plan: v.plan})
	default:
		raw := v.raw
		return json.Marshal(planValueJSON{Raw: &raw})
	}
}

func (v *PlanValue) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = PlanValue{}
		return nil
	}

	var pv planValueJSON
	if err := json.Unmarshal(data, &pv); err != nil {
		return goerr.Wrap(err, "failed to unmarshal plan value")
	}
	switch {
	case pv.Plan != nil:
		*v = ValidatedPlan(pv.Plan)
	case pv.Raw != nil:
		*v = RawPlan(*pv.Raw)
	default:
		*v = PlanValue{}
	}
	return nil
}
