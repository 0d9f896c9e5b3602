package contract

import (
	"encoding/json"
	"testing"
)

func textTool() ToolSchema {
	minLen, maxLen := 1, 40000
	return ToolSchema{
		Name: "send-message",
		Parameters: []ParameterSchema{
			{Name: "text", Kind: KindString, Required: true, MinLength: &minLen, MaxLength: &maxLen},
		},
	}
}

func argsOf(t *testing.T, m map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := map[string]json.RawMessage{}
	for k, v := range m {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %q: %v", k, err)
		}
		out[k] = b
	}
	return out
}

func TestValidateArgumentsEmptyStringRejected(t *testing.T) {
	tool := textTool()
	f := ValidateArguments(tool, argsOf(t, map[string]any{"text": ""}))
	if f == nil || f.Kind != FailureBadRequest {
		t.Fatalf("expected BadRequest, got %v", f)
	}
}

func TestValidateArgumentsValidPasses(t *testing.T) {
	tool := textTool()
	if f := ValidateArguments(tool, argsOf(t, map[string]any{"text": "hi"})); f != nil {
		t.Fatalf("expected no failure, got %v", f)
	}
}

func TestValidateArgumentsMissingRequired(t *testing.T) {
	tool := textTool()
	if f := ValidateArguments(tool, map[string]json.RawMessage{}); f == nil || f.Kind != FailureBadRequest {
		t.Fatalf("expected BadRequest for missing required param, got %v", f)
	}
}

func TestValidateArgumentsUnknownParameter(t *testing.T) {
	tool := textTool()
	if f := ValidateArguments(tool, argsOf(t, map[string]any{"text": "hi", "bogus": 1})); f == nil || f.Kind != FailureBadRequest {
		t.Fatalf("expected BadRequest for unknown param, got %v", f)
	}
}

func TestCapabilitySetMerge(t *testing.T) {
	defaults := CapabilitySet{NetworkAccess: false, MaxConcurrentRequests: 10, AllowedPaths: []string{"/a"}}
	instance := CapabilitySet{AllowedPaths: []string{"/b", "/c"}}
	merged := defaults.Merge(instance)
	if len(merged.AllowedPaths) != 2 || merged.AllowedPaths[0] != "/b" {
		t.Fatalf("expected instance paths to replace defaults, got %v", merged.AllowedPaths)
	}
	if merged.MaxConcurrentRequests != 10 {
		t.Fatalf("expected default concurrency to survive merge, got %d", merged.MaxConcurrentRequests)
	}
}

func TestToolResultRoundTrip(t *testing.T) {
	r := Success("ok", json.RawMessage(`{"n":1}`))
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var r2 ToolResult
	if err := json.Unmarshal(b, &r2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r2.IsSuccess() || r2.Text() != "ok" {
		t.Fatalf("round trip mismatch: %+v", r2)
	}

	fr := FailureResult(NewFailure(FailureTimeout, "deadline exceeded"))
	b2, _ := json.Marshal(fr)
	var fr2 ToolResult
	if err := json.Unmarshal(b2, &fr2); err != nil {
		t.Fatalf("unmarshal failure: %v", err)
	}
	if fr2.IsSuccess() || fr2.Failure().Kind != FailureTimeout {
		t.Fatalf("expected failure timeout, got %+v", fr2)
	}
}
