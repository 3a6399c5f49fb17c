package expr

import (
	"strings"
	"testing"
)

func testContext() *Context {
	return &Context{
		Deps: map[string]any{
			"fetch_user": map[string]any{
				"output": map[string]any{
					"name":  "ada",
					"score": int64(42),
					"tags":  []any{"a", "b"},
				},
				"error": nil,
			},
			"probe": map[string]any{
				"output": nil,
				"error":  "connection refused",
			},
		},
		Call: map[string]any{
			"id":      "greet",
			"name":    "exec",
			"attempt": int64(0),
		},
	}
}

func TestEvaluateLiteralPassthrough(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("plain text, no templates", testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != "plain text, no templates" {
		t.Errorf("got %v", got)
	}
}

func TestEvaluateSoleExpressionKeepsType(t *testing.T) {
	e := NewEvaluator()

	got, err := e.Evaluate("$(deps.fetch_user.output.score)", testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 42 {
		t.Errorf("got %v (%T), want int64 42", got, got)
	}

	got, err = e.Evaluate("$(deps.fetch_user.output.tags)", testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if arr, ok := got.([]any); !ok || len(arr) != 2 {
		t.Errorf("got %v (%T), want 2-element slice", got, got)
	}
}

func TestEvaluateInterpolation(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("hello $(deps.fetch_user.output.name), attempt $(call.attempt)", testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != "hello ada, attempt 0" {
		t.Errorf("got %q", got)
	}
}

func TestEvaluateArithmetic(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("$(deps.fetch_user.output.score * 2)", testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 84 {
		t.Errorf("got %v (%T), want 84", got, got)
	}
}

func TestEvaluateEscapedDollar(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate(`literal \$(not.a.template)`, testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != "literal $(not.a.template)" {
		t.Errorf("got %q", got)
	}
}

func TestEvaluateUndefinedAccessFails(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("$(deps.fetch_user.output.missing)", testContext())
	if err == nil || !strings.Contains(err.Error(), "undefined") {
		t.Errorf("err = %v, want undefined property error", err)
	}
}

func TestEvaluateDependencyError(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("$(deps.probe.error)", testContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != "connection refused" {
		t.Errorf("got %v", got)
	}
}

func TestResolveParamsRecurses(t *testing.T) {
	e := NewEvaluator()
	params := map[string]any{
		"url":   "https://api.example.com/users/$(deps.fetch_user.output.name)",
		"count": 3,
		"nested": map[string]any{
			"greeting": "hi $(deps.fetch_user.output.name)",
		},
		"list": []any{"$(call.id)", "static"},
	}

	out, err := e.ResolveParams(params, testContext())
	if err != nil {
		t.Fatalf("ResolveParams: %v", err)
	}
	if out["url"] != "https://api.example.com/users/ada" {
		t.Errorf("url = %v", out["url"])
	}
	if out["count"] != 3 {
		t.Errorf("count = %v, want untouched 3", out["count"])
	}
	if out["nested"].(map[string]any)["greeting"] != "hi ada" {
		t.Errorf("nested = %v", out["nested"])
	}
	if out["list"].([]any)[0] != "greet" {
		t.Errorf("list = %v", out["list"])
	}
}

func TestResolveParamsNil(t *testing.T) {
	e := NewEvaluator()
	out, err := e.ResolveParams(nil, testContext())
	if err != nil || out != nil {
		t.Errorf("got %v, %v; want nil, nil", out, err)
	}
}

func TestResolveParamsReportsFailingKey(t *testing.T) {
	e := NewEvaluator()
	_, err := e.ResolveParams(map[string]any{"bad": "$(deps.nope.output)"}, testContext())
	if err == nil || !strings.Contains(err.Error(), `param "bad"`) {
		t.Errorf("err = %v, want error naming the param", err)
	}
}

func TestContainsExpression(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"$(deps.a.output)", true},
		{"prefix $(x) suffix", true},
		{`\$(escaped)`, false},
		{"plain", false},
		{"$", false},
	}
	for _, tt := range tests {
		if got := ContainsExpression(tt.in); got != tt.want {
			t.Errorf("ContainsExpression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
