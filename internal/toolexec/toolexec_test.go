package toolexec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/toolflow/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func execCall(id string, params map[string]any) *model.ToolCall {
	return &model.ToolCall{ID: id, Name: "exec", Parameters: params}
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register("echo", func(ctx context.Context, c *model.ToolCall) (any, error) {
		return c.Parameters["msg"], nil
	})

	out, err := r.Dispatch(context.Background(), &model.ToolCall{
		ID: "c1", Name: "echo", Parameters: map[string]any{"msg": "hi"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "hi" {
		t.Errorf("out = %v", out)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Dispatch(context.Background(), &model.ToolCall{ID: "c1", Name: "nope"})

	var uerr *model.UnknownToolError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want UnknownToolError", err)
	}
	if uerr.Tool != "nope" {
		t.Errorf("tool = %q", uerr.Tool)
	}
}

func TestDefaultRegistryBuiltins(t *testing.T) {
	r := NewDefaultRegistry(testLogger())
	names := r.Names()
	if len(names) != 2 || names[0] != "exec" || names[1] != "fetch" {
		t.Errorf("names = %v, want [exec fetch]", names)
	}
	if !r.Has("exec") || r.Has("missing") {
		t.Error("Has() misreports registration")
	}
}

func TestExecToolCapturesOutput(t *testing.T) {
	h := ExecTool(testLogger())
	out, err := h(context.Background(), execCall("c1", map[string]any{
		"command": "printf hello; printf warn >&2",
	}))
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	m := out.(map[string]any)
	if m["stdout"] != "hello" || m["stderr"] != "warn" || m["exit_code"] != 0 {
		t.Errorf("output = %#v", m)
	}
}

func TestExecToolStdinAndEnv(t *testing.T) {
	h := ExecTool(testLogger())
	out, err := h(context.Background(), execCall("c1", map[string]any{
		"command": "cat; printf %s \"$GREETING\"",
		"stdin":   "from-stdin ",
		"env":     map[string]any{"GREETING": "from-env"},
	}))
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got := out.(map[string]any)["stdout"]; got != "from-stdin from-env" {
		t.Errorf("stdout = %q", got)
	}
}

func TestExecToolNonZeroExit(t *testing.T) {
	h := ExecTool(testLogger())
	out, err := h(context.Background(), execCall("c1", map[string]any{
		"command": "printf nope >&2; exit 3",
	}))
	if err == nil || !strings.Contains(err.Error(), "code 3") {
		t.Fatalf("err = %v, want exit code 3 error", err)
	}
	// Partial output survives alongside the error.
	if out.(map[string]any)["exit_code"] != 3 {
		t.Errorf("output = %#v", out)
	}
}

func TestExecToolMissingCommand(t *testing.T) {
	h := ExecTool(testLogger())
	if _, err := h(context.Background(), execCall("c1", nil)); err == nil {
		t.Error("expected error for missing command")
	}
}

func TestExecToolHonorsContext(t *testing.T) {
	h := ExecTool(testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h(ctx, execCall("c1", map[string]any{"command": "sleep 5"}))
	if err == nil {
		t.Error("expected error when context expires")
	}
}

func TestFetchToolSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	h := FetchTool(testLogger(), srv.Client())
	out, err := h(context.Background(), &model.ToolCall{
		ID: "c1", Name: "fetch",
		Parameters: map[string]any{
			"url":     srv.URL,
			"headers": map[string]any{"X-Token": "secret"},
		},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	m := out.(map[string]any)
	if m["status"] != http.StatusOK {
		t.Errorf("status = %v", m["status"])
	}
	if m["body"] != `{"ok":true}` {
		t.Errorf("body = %q", m["body"])
	}
	if hdrs := m["headers"].(map[string]string); hdrs["Content-Type"] != "application/json" {
		t.Errorf("headers = %v", hdrs)
	}
}

func TestFetchToolServerErrorCarriesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := FetchTool(testLogger(), srv.Client())
	_, err := h(context.Background(), &model.ToolCall{
		ID: "c1", Name: "fetch", Parameters: map[string]any{"url": srv.URL},
	})
	// The literal status code makes the failure retryable upstream.
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want message containing 503", err)
	}
}

func TestFetchToolRejectsUnsupportedMethod(t *testing.T) {
	h := FetchTool(testLogger(), nil)
	_, err := h(context.Background(), &model.ToolCall{
		ID: "c1", Name: "fetch",
		Parameters: map[string]any{"url": "http://example.com", "method": "POST"},
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported method") {
		t.Errorf("err = %v", err)
	}
}
