package toolexec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/me/toolflow/internal/scheduler"
	"github.com/me/toolflow/pkg/model"
)

// maxFetchBody caps how much of a response body the fetch tool reads.
const maxFetchBody = 4 << 20

// FetchTool returns the builtin "fetch" handler. It performs an HTTP
// request and returns status, headers, and body. A nil client gets a
// default with a 30s overall timeout; per-call deadlines still come from
// the scheduler through ctx.
//
// Parameters:
//   - url (string, required)
//   - method (string): GET or HEAD, default GET
//   - headers (map): request headers
func FetchTool(logger *slog.Logger, client *http.Client) scheduler.Handler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log := logger.With("component", "fetch-tool")

	return func(ctx context.Context, call *model.ToolCall) (any, error) {
		url, err := stringParam(call, "url", true)
		if err != nil {
			return nil, err
		}
		method, err := stringParam(call, "method", false)
		if err != nil {
			return nil, err
		}
		if method == "" {
			method = http.MethodGet
		}
		method = strings.ToUpper(method)
		if method != http.MethodGet && method != http.MethodHead {
			return nil, fmt.Errorf("call %s: unsupported method %q", call.ID, method)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: build request: %w", call.ID, err)
		}
		if raw, ok := call.Parameters["headers"]; ok {
			headers, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("call %s: parameter \"headers\" must be a map", call.ID)
			}
			for k, v := range headers {
				req.Header.Set(k, fmt.Sprintf("%v", v))
			}
		}

		log.Debug("fetching", "call_id", call.ID, "method", method, "url", url)
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
		}

		headers := make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			headers[k] = resp.Header.Get(k)
		}
		output := map[string]any{
			"status":  resp.StatusCode,
			"headers": headers,
			"body":    string(body),
		}

		// The status code stays in the error text so the retry classifier
		// can see 429/5xx responses.
		if resp.StatusCode >= 400 {
			return output, fmt.Errorf("fetch %s: server returned %d %s",
				url, resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return output, nil
	}
}
