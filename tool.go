package quizai

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]*Parameter
	Required    []string
}

// Validate checks that the tool can be offered to a provider.
func (s *ToolSpec) Validate() error {
	eb := goerr.NewBuilder(goerr.V("tool", s.Name))
	if s.Name == "" {
		return eb.Wrap(ErrInvalidTool, "name is required")
	}

	for name, param := range s.Parameters {
		if err := param.Validate(); err != nil {
			return eb.Wrap(err, "invalid parameter", goerr.V("parameter", name))
		}
	}
	for _, req := range s.Required {
		if _, ok := s.Parameters[req]; !ok {
			return eb.Wrap(ErrInvalidTool, "required parameter is not defined", goerr.V("parameter", req))
		}
	}

	return nil
}

// ParameterType is a JSON schema primitive type.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// Parameter is a JSON schema fragment used both for tool arguments and for
// structured output.
type Parameter struct {
	Title       string
	Type        ParameterType
	Description string

	// Required lists required property names when Type is object.
	Required   []string
	Enum       []string
	Properties map[string]*Parameter
	Items      *Parameter

	Minimum  *float64
	Maximum  *float64
	MinItems *int
	MaxItems *int
}

// Validate validates the parameter recursively.
func (p *Parameter) Validate() error {
	eb := goerr.NewBuilder(goerr.V("type", p.Type), goerr.V("title", p.Title))

	switch p.Type {
	case "":
		return eb.Wrap(ErrInvalidParameter, "type is required")

	case TypeObject:
		if p.Properties == nil {
			return eb.Wrap(ErrInvalidParameter, "properties is required for object type")
		}
		for name, prop := range p.Properties {
			if err := prop.Validate(); err != nil {
				return eb.Wrap(err, "invalid property", goerr.V("property", name))
			}
		}
		for _, req := range p.Required {
			if _, ok := p.Properties[req]; !ok {
				return eb.Wrap(ErrInvalidParameter, "required field not found in properties", goerr.V("field", req))
			}
		}

	case TypeArray:
		if p.Items == nil {
			return eb.Wrap(ErrInvalidParameter, "items is required for array type")
		}
		if err := p.Items.Validate(); err != nil {
			return eb.Wrap(err, "invalid items")
		}
		if p.MinItems != nil && p.MaxItems != nil && *p.MinItems > *p.MaxItems {
			return eb.Wrap(ErrInvalidParameter, "minItems must be less than or equal to maxItems")
		}

	case TypeNumber, TypeInteger:
		if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
			return eb.Wrap(ErrInvalidParameter, "minimum must be less than or equal to maximum")
		}

	case TypeString, TypeBoolean:

	default:
		return eb.Wrap(ErrInvalidParameter, "unsupported type")
	}

	return nil
}

// JSONSchema renders the parameter as a JSON schema document.
func (p *Parameter) JSONSchema() map[string]any {
	schema := map[string]any{"type": string(p.Type)}
	if p.Title != "" {
		schema["title"] = p.Title
	}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	if p.Properties != nil {
		props := make(map[string]any, len(p.Properties))
		for name, prop := range p.Properties {
			props[name] = prop.JSONSchema()
		}
		schema["properties"] = props
		if len(p.Required) > 0 {
			schema["required"] = p.Required
		}
	}
	if p.Items != nil {
		schema["items"] = p.Items.JSONSchema()
	}
	if p.Minimum != nil {
		schema["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		schema["maximum"] = *p.Maximum
	}
	if p.MinItems != nil {
		schema["minItems"] = *p.MinItems
	}
	if p.MaxItems != nil {
		schema["maxItems"] = *p.MaxItems
	}
	return schema
}

// JSONSchema renders the tool arguments as an object schema.
func (s *ToolSpec) JSONSchema() map[string]any {
	obj := &Parameter{
		Type:       TypeObject,
		Properties: s.Parameters,
		Required:   s.Required,
	}
	if obj.Properties == nil {
		obj.Properties = map[string]*Parameter{}
	}
	return obj.JSONSchema()
}

// Tool is an action the model can call during a worker's tool loop.
type Tool interface {
	Spec() ToolSpec

	// Run executes the tool. A returned error is reported back to the model
	// as the tool result; it does not abort the loop.
	Run(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolSet groups tools that share a backend, such as an MCP server.
type ToolSet interface {
	Specs(ctx context.Context) ([]ToolSpec, error)
	Run(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

const handoffToPlannerName = "handoff_to_planner"

// handoffToPlannerSpec is the single tool offered to the coordinator. It has
// no implementation; a call to it is the routing signal.
func handoffToPlannerSpec() ToolSpec {
	return ToolSpec{
		Name:        handoffToPlannerName,
		Description: "Handoff to planner agent to do plan.",
		Parameters: map[string]*Parameter{
			"research_topic": {
				Type:        TypeString,
				Description: "The topic of the research task to be handed off.",
			},
			"locale": {
				Type:        TypeString,
				Description: "The user's detected language locale (e.g., en-US, zh-CN).",
			},
		},
		Required: []string{"research_topic", "locale"},
	}
}

type toolWrapper struct {
	spec ToolSpec
	run  func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (x *toolWrapper) Spec() ToolSpec {
	return x.spec
}

func (x *toolWrapper) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return x.run(ctx, args)
}

func buildToolMap(ctx context.Context, tools []Tool, toolSets []ToolSet) (map[string]Tool, error) {
	toolMap := map[string]Tool{}

	for _, tool := range tools {
		spec := tool.Spec()
		if _, ok := toolMap[spec.Name]; ok {
			return nil, goerr.Wrap(ErrToolNameConflict, "duplicated tool", goerr.V("tool_name", spec.Name))
		}
		toolMap[spec.Name] = tool
	}

	for _, toolSet := range toolSets {
		specs, err := toolSet.Specs(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get tool set specs")
		}

		for _, spec := range specs {
			if _, ok := toolMap[spec.Name]; ok {
				return nil, goerr.Wrap(ErrToolNameConflict, "duplicated tool in tool set", goerr.V("tool_name", spec.Name))
			}
			set := toolSet
			name := spec.Name
			toolMap[name] = &toolWrapper{
				spec: spec,
				run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					return set.Run(ctx, name, args)
				},
			}
		}
	}

	return toolMap, nil
}
