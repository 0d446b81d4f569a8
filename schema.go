package quizai

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrUnsupportedType = goerr.New("unsupported type for schema conversion")
	ErrInvalidTag      = goerr.New("invalid struct tag")
	ErrCyclicReference = goerr.New("cyclic reference detected")
)

type tagInfo struct {
	name        string
	description string
	enum        []string
	min         *float64
	max         *float64
	minItems    *int
	maxItems    *int
	required    bool
	ignore      bool
}

// ToSchema converts a Go struct into a Parameter by reflection. Supported
// tags: json, description, enum (comma separated), min, max, minItems,
// maxItems and required:"true".
//
//	type Step struct {
//	    Title    string `json:"title" required:"true"`
//	    StepType string `json:"step_type" enum:"research,processing"`
//	}
func ToSchema(v any) (*Parameter, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, goerr.Wrap(ErrUnsupportedType, "nil value")
	}

	return convertType(t, make(map[reflect.Type]bool), tagInfo{})
}

// MustToSchema is like ToSchema but panics on error.
func MustToSchema(v any) *Parameter {
	param, err := ToSchema(v)
	if err != nil {
		panic(goerr.Wrap(err, "MustToSchema failed"))
	}
	return param
}

func convertType(t reflect.Type, seen map[reflect.Type]bool, tags tagInfo) (*Parameter, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() == reflect.Struct {
		if seen[t] {
			return nil, goerr.Wrap(ErrCyclicReference, "type appears multiple times in hierarchy", goerr.V("type", t.String()))
		}
		seen[t] = true
		defer delete(seen, t)
	}

	param := &Parameter{}

	switch t.Kind() {
	case reflect.String:
		param.Type = TypeString

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		param.Type = TypeInteger
		param.Minimum, param.Maximum = tags.min, tags.max

	case reflect.Float32, reflect.Float64:
		param.Type = TypeNumber
		param.Minimum, param.Maximum = tags.min, tags.max

	case reflect.Bool:
		param.Type = TypeBoolean

	case reflect.Slice, reflect.Array:
		param.Type = TypeArray
		elem, err := convertType(t.Elem(), seen, tagInfo{})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert array element type")
		}
		param.Items = elem
		param.MinItems, param.MaxItems = tags.minItems, tags.maxItems

	case reflect.Struct:
		obj, err := convertStruct(t, seen)
		if err != nil {
			return nil, err
		}
		param = obj

	default:
		return nil, goerr.Wrap(ErrUnsupportedType, "cannot convert type", goerr.V("type", t.Kind().String()))
	}

	if tags.description != "" {
		param.Description = tags.description
	}
	if len(tags.enum) > 0 {
		param.Enum = tags.enum
	}

	return param, nil
}

func convertStruct(t reflect.Type, seen map[reflect.Type]bool) (*Parameter, error) {
	param := &Parameter{
		Type:       TypeObject,
		Properties: make(map[string]*Parameter),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tags, err := parseTag(field)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse tag", goerr.V("field", field.Name))
		}
		if tags.ignore {
			continue
		}

		name := tags.name
		if name == "" {
			name = field.Name
		}

		fieldParam, err := convertType(field.Type, seen, tags)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert field", goerr.V("field", field.Name))
		}

		param.Properties[name] = fieldParam
		if tags.required {
			param.Required = append(param.Required, name)
		}
	}
	sort.Strings(param.Required)

	return param, nil
}

func parseTag(field reflect.StructField) (tagInfo, error) {
	info := tagInfo{}

	if jsonTag := field.Tag.Get("json"); jsonTag != "" {
		parts := strings.Split(jsonTag, ",")
		if parts[0] == "-" {
			info.ignore = true
			return info, nil
		}
		info.name = parts[0]
	}

	info.description = field.Tag.Get("description")

	if enumTag := field.Tag.Get("enum"); enumTag != "" {
		for _, v := range strings.Split(enumTag, ",") {
			info.enum = append(info.enum, strings.TrimSpace(v))
		}
	}

	parseFloat := func(key string) (*float64, error) {
		raw := field.Tag.Get(key)
		if raw == "" {
			return nil, nil
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, goerr.Wrap(ErrInvalidTag, "invalid number", goerr.V("field", field.Name), goerr.V("tag", key), goerr.V("value", raw))
		}
		return &val, nil
	}
	parseInt := func(key string) (*int, error) {
		raw := field.Tag.Get(key)
		if raw == "" {
			return nil, nil
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			return nil, goerr.Wrap(ErrInvalidTag, "invalid integer", goerr.V("field", field.Name), goerr.V("tag", key), goerr.V("value", raw))
		}
		return &val, nil
	}

	var err error
	if info.min, err = parseFloat("min"); err != nil {
		return info, err
	}
	if info.max, err = parseFloat("max"); err != nil {
		return info, err
	}
	if info.minItems, err = parseInt("minItems"); err != nil {
		return info, err
	}
	if info.maxItems, err = parseInt("maxItems"); err != nil {
		return info, err
	}

	if reqTag := field.Tag.Get("required"); reqTag != "" {
		required, err := strconv.ParseBool(reqTag)
		if err != nil {
			return info, goerr.Wrap(ErrInvalidTag, "invalid required value", goerr.V("field", field.Name), goerr.V("value", reqTag))
		}
		info.required = required
	}

	return info, nil
}
