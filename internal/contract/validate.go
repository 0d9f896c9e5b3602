package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// ValidateArguments checks a decoded JSON object of tool call arguments
// against a tool's declared parameter schema. It never invokes the
// executor; callers that reject here must never cross the dispatch
// boundary, per spec: "arguments violating Σ produce BadRequest without
// invoking the executor."
func ValidateArguments(tool ToolSchema, args map[string]json.RawMessage) *Failure {
	for _, p := range tool.Parameters {
		raw, present := args[p.Name]
		if !present || isJSONNull(raw) {
			if p.Required && p.Default == nil {
				return NewFailure(FailureBadRequest, fmt.Sprintf("missing required parameter %q", p.Name))
			}
			continue
		}
		if f := validateOne(p, raw); f != nil {
			return f
		}
	}
	for name := range args {
		if _, ok := tool.Parameter(name); !ok {
			return NewFailure(FailureBadRequest, fmt.Sprintf("unknown parameter %q", name))
		}
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

func validateOne(p ParameterSchema, raw json.RawMessage) *Failure {
	switch p.Kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q must be a string", p.Name))
		}
		if p.MinLength != nil && len(s) < *p.MinLength {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q shorter than minimum length %d", p.Name, *p.MinLength))
		}
		if p.MaxLength != nil && len(s) > *p.MaxLength {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q exceeds maximum length %d", p.Name, *p.MaxLength))
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q has an invalid pattern constraint", p.Name))
			}
			if !re.MatchString(s) {
				return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q does not match required pattern", p.Name))
			}
		}
		if len(p.Enum) > 0 && !containsString(p.Enum, s) {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q is not one of the allowed values", p.Name))
		}
	case KindNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q must be a number", p.Name))
		}
		if p.Min != nil && n < *p.Min {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q below minimum %v", p.Name, *p.Min))
		}
		if p.Max != nil && n > *p.Max {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q above maximum %v", p.Name, *p.Max))
		}
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q must be a boolean", p.Name))
		}
	case KindArray:
		var a []json.RawMessage
		if err := json.Unmarshal(raw, &a); err != nil {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q must be an array", p.Name))
		}
	case KindJSON:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q must be valid json", p.Name))
		}
	default:
		return NewFailure(FailureBadRequest, fmt.Sprintf("parameter %q has unknown kind %q", p.Name, p.Kind))
	}
	return nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
