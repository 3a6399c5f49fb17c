package plan

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/me/toolflow/pkg/model"
)

const samplePlan = `
name: build-and-test
calls:
  - id: fmt-check
    tool: exec
    priority: 5
    params:
      command: gofmt -l .
  - id: build
    tool: exec
    params:
      command: go build ./...
  - id: test
    tool: exec
    depends_on: [build]
    max_retries: 1
    retry_delay: 2s
    timeout: 5m
    params:
      command: go test ./...
`

func TestParseSamplePlan(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "build-and-test" {
		t.Errorf("name = %q", p.Name)
	}
	if len(p.Calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(p.Calls))
	}
	if p.Calls[0].Priority != 5 {
		t.Errorf("fmt-check priority = %d, want 5", p.Calls[0].Priority)
	}
	test := p.Calls[2]
	if test.MaxRetries == nil || *test.MaxRetries != 1 {
		t.Errorf("test max_retries = %v, want 1", test.MaxRetries)
	}
	if len(test.DependsOn) != 1 || test.DependsOn[0] != "build" {
		t.Errorf("test depends_on = %v", test.DependsOn)
	}
}

func TestParseGeneratesMissingIDs(t *testing.T) {
	p, err := Parse([]byte("calls:\n  - tool: exec\n  - tool: fetch\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "plan" {
		t.Errorf("default name = %q, want plan", p.Name)
	}
	seen := map[string]bool{}
	for _, c := range p.Calls {
		if !strings.HasPrefix(c.ID, "call_") {
			t.Errorf("generated id %q lacks call_ prefix", c.ID)
		}
		if seen[c.ID] {
			t.Errorf("duplicate generated id %q", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("calls: [unterminated")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidateTopologicalOrder(t *testing.T) {
	p := &Plan{Calls: []Call{
		{ID: "top", Tool: "exec", DependsOn: []string{"mid"}},
		{ID: "mid", Tool: "exec", DependsOn: []string{"leaf"}},
		{ID: "leaf", Tool: "exec"},
	}}

	order, warnings, err := p.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	if !(pos["leaf"] < pos["mid"] && pos["mid"] < pos["top"]) {
		t.Errorf("order = %v, want leaf before mid before top", order)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	p := &Plan{Calls: []Call{
		{ID: "a", Tool: "exec", DependsOn: []string{"b"}},
		{ID: "b", Tool: "exec", DependsOn: []string{"a"}},
	}}

	_, _, err := p.Validate()
	var cerr *model.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(cerr.CallIDs) != 2 {
		t.Errorf("cycle members = %v, want [a b]", cerr.CallIDs)
	}
}

func TestValidateSelfDependencyIsCycle(t *testing.T) {
	p := &Plan{Calls: []Call{{ID: "a", Tool: "exec", DependsOn: []string{"a"}}}}
	_, _, err := p.Validate()
	var cerr *model.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CycleError", err)
	}
}

func TestValidateDuplicateID(t *testing.T) {
	p := &Plan{Calls: []Call{
		{ID: "a", Tool: "exec"},
		{ID: "a", Tool: "fetch"},
	}}
	if _, _, err := p.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("err = %v, want duplicate id error", err)
	}
}

func TestValidateMissingTool(t *testing.T) {
	p := &Plan{Calls: []Call{{ID: "a"}}}
	if _, _, err := p.Validate(); err == nil || !strings.Contains(err.Error(), "tool name") {
		t.Errorf("err = %v, want missing tool error", err)
	}
}

func TestValidateWarnsUnknownDependency(t *testing.T) {
	p := &Plan{Calls: []Call{
		{ID: "a", Tool: "exec", DependsOn: []string{"external"}},
	}}
	_, warnings, err := p.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "external") {
		t.Errorf("warnings = %v, want one citing external", warnings)
	}
}

func TestValidateBadDuration(t *testing.T) {
	p := &Plan{Calls: []Call{{ID: "a", Tool: "exec", Timeout: "banana"}}}
	if _, _, err := p.Validate(); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("err = %v, want timeout parse error", err)
	}

	p = &Plan{Calls: []Call{{ID: "a", Tool: "exec", RetryDelay: "-5s"}}}
	if _, _, err := p.Validate(); err == nil || !strings.Contains(err.Error(), "positive") {
		t.Errorf("err = %v, want negative duration error", err)
	}
}

func TestToolCallsConversion(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	calls, err := p.ToolCalls()
	if err != nil {
		t.Fatalf("ToolCalls: %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("calls = %d", len(calls))
	}

	tc := calls[2]
	if tc.Name != "exec" || tc.ID != "test" {
		t.Errorf("call = %+v", tc)
	}
	if tc.RetryDelay == nil || *tc.RetryDelay != 2*time.Second {
		t.Errorf("retry delay = %v, want 2s", tc.RetryDelay)
	}
	if tc.Timeout == nil || *tc.Timeout != 5*time.Minute {
		t.Errorf("timeout = %v, want 5m", tc.Timeout)
	}

	// Omitted policy fields stay nil so scheduler defaults apply.
	if calls[0].MaxRetries != nil || calls[0].Timeout != nil || calls[0].RetryDelay != nil {
		t.Errorf("fmt-check policy fields should be nil: %+v", calls[0])
	}
}
