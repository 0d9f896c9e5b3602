package wasmexec

import (
	"context"
	"testing"
	"time"

	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/dispatch"
)

func descriptorWithTool(name string) contract.SkillDescriptor {
	return contract.SkillDescriptor{
		ID:   "sample",
		Name: "sample",
		Tools: []contract.ToolSchema{
			{
				Name: name,
				Parameters: []contract.ParameterSchema{
					{Name: "query", Kind: contract.KindString, Required: true},
				},
			},
		},
	}
}

// These tests exercise the pre-boundary checks (§4.5.1 "Ordering": schema
// validation happens before crossing into the guest), which never touch the
// wazero runtime, so no compiled module is required.
func TestExecuteToolUnknownToolIsNotFound(t *testing.T) {
	e := &Executor{descriptor: descriptorWithTool("search"), callTimeout: time.Second}
	res := e.ExecuteTool(context.Background(), "missing", []byte(`{}`), dispatch.ExecContext{})
	if res.IsSuccess() || res.Failure().Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound, got %v", res.Failure())
	}
}

func TestExecuteToolMalformedArgumentsIsBadRequest(t *testing.T) {
	e := &Executor{descriptor: descriptorWithTool("search"), callTimeout: time.Second}
	res := e.ExecuteTool(context.Background(), "search", []byte(`not json`), dispatch.ExecContext{})
	if res.IsSuccess() || res.Failure().Kind != contract.FailureBadRequest {
		t.Fatalf("expected BadRequest, got %v", res.Failure())
	}
}

func TestExecuteToolMissingRequiredArgumentIsBadRequest(t *testing.T) {
	e := &Executor{descriptor: descriptorWithTool("search"), callTimeout: time.Second}
	res := e.ExecuteTool(context.Background(), "search", []byte(`{}`), dispatch.ExecContext{})
	if res.IsSuccess() || res.Failure().Kind != contract.FailureBadRequest {
		t.Fatalf("expected BadRequest for missing required parameter, got %v", res.Failure())
	}
}
