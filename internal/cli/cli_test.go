package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/toolflow/pkg/model"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestRunCommandExecutesPlan(t *testing.T) {
	planPath := writePlan(t, `
name: smoke
calls:
  - id: hello
    tool: exec
    params:
      command: printf hello
  - id: shout
    tool: exec
    depends_on: [hello]
    params:
      command: printf '$(deps.hello.output.stdout)!'
`)

	out, err := execute(t, "run", planPath, "--no-history")
	if err != nil {
		t.Fatalf("run: %v\noutput: %s", err, out)
	}

	var results map[string]*model.ExecutionResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("parse results: %v\noutput: %s", err, out)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	shout := results["shout"]
	if shout == nil || shout.Status != model.CallStateCompleted {
		t.Fatalf("shout = %+v", shout)
	}
	stdout := shout.Output.(map[string]any)["stdout"]
	if stdout != "hello!" {
		t.Errorf("shout stdout = %q, want %q (dependency output templating)", stdout, "hello!")
	}
}

func TestRunCommandFailurePropagatesExitError(t *testing.T) {
	planPath := writePlan(t, `
calls:
  - id: bad
    tool: exec
    max_retries: 0
    params:
      command: exit 7
`)

	out, err := execute(t, "run", planPath, "--no-history")
	if err == nil {
		t.Fatalf("expected error, output: %s", out)
	}
	if !strings.Contains(err.Error(), "did not complete") {
		t.Errorf("err = %v", err)
	}
}

func TestRunCommandRecordsHistory(t *testing.T) {
	planPath := writePlan(t, `
name: recorded
calls:
  - id: ok
    tool: exec
    params:
      command: "true"
`)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, "run", planPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("run: %v\noutput: %s", err, out)
	}

	listing, err := execute(t, "history", "--db", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(listing, "recorded") || !strings.Contains(listing, "SUCCEEDED") {
		t.Errorf("history listing missing run:\n%s", listing)
	}
}

func TestValidateCommand(t *testing.T) {
	planPath := writePlan(t, `
name: checkme
calls:
  - id: a
    tool: exec
    params: {command: "true"}
  - id: b
    tool: mystery
    depends_on: [a]
`)

	out, err := execute(t, "validate", planPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "plan is valid") {
		t.Errorf("output missing validity line:\n%s", out)
	}
	if !strings.Contains(out, "a -> b") {
		t.Errorf("output missing execution order:\n%s", out)
	}
	if !strings.Contains(out, "mystery") {
		t.Errorf("output missing unregistered tool warning:\n%s", out)
	}
}

func TestValidateCommandRejectsCycle(t *testing.T) {
	planPath := writePlan(t, `
calls:
  - id: a
    tool: exec
    depends_on: [b]
  - id: b
    tool: exec
    depends_on: [a]
`)

	if _, err := execute(t, "validate", planPath); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("err = %v, want cycle error", err)
	}
}

func TestHistoryCommandEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	out, err := execute(t, "history", "--db", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "no recorded runs") {
		t.Errorf("output = %q", out)
	}
}
