package contract

import (
	"encoding/json"
	"fmt"
)

// ToolResult is the tagged sum returned by execute_tool: either a Success
// carrying output text and optional structured data, or a Failure carrying
// one of the taxonomized FailureKinds. Exactly one variant is populated.
type ToolResult struct {
	success        bool
	outputText     string
	structuredData json.RawMessage
	failure        *Failure
}

// Success constructs the success variant.
func Success(outputText string, structuredData json.RawMessage) ToolResult {
	return ToolResult{success: true, outputText: outputText, structuredData: structuredData}
}

// FailureResult constructs the failure variant.
func FailureResult(f *Failure) ToolResult {
	return ToolResult{success: false, failure: f}
}

// IsSuccess reports which variant is populated.
func (r ToolResult) IsSuccess() bool { return r.success }

// Text returns the output text of a successful result, or "" for a failure.
func (r ToolResult) Text() string { return r.outputText }

// StructuredData returns the structured payload of a successful result, if
// the skill provided one.
func (r ToolResult) StructuredData() json.RawMessage { return r.structuredData }

// Failure returns the failure detail, or nil for a success.
func (r ToolResult) Failure() *Failure { return r.failure }

type wireToolResult struct {
	OutputText     string          `json:"output_text,omitempty"`
	StructuredData json.RawMessage `json:"structured_data,omitempty"`
	Failure        *Failure        `json:"failure,omitempty"`
}

func (r ToolResult) MarshalJSON() ([]byte, error) {
	if r.success {
		return json.Marshal(wireToolResult{OutputText: r.outputText, StructuredData: r.structuredData})
	}
	return json.Marshal(wireToolResult{Failure: r.failure})
}

func (r *ToolResult) UnmarshalJSON(data []byte) error {
	var w wireToolResult
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("tool result: %w", err)
	}
	if w.Failure != nil {
		*r = FailureResult(w.Failure)
		return nil
	}
	*r = Success(w.OutputText, w.StructuredData)
	return nil
}
