// Package plan loads and validates YAML plan files: named batches of tool
// calls with priorities, dependencies, and per-call retry/timeout policy.
package plan

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/me/toolflow/pkg/model"
	"gopkg.in/yaml.v3"
)

// Plan is one parsed plan file.
type Plan struct {
	Name  string `yaml:"name"`
	Calls []Call `yaml:"calls"`
}

// Call is the YAML representation of one tool call. Policy fields are
// pointers so that omitted values fall through to scheduler defaults.
type Call struct {
	ID         string         `yaml:"id"`
	Tool       string         `yaml:"tool"`
	Params     map[string]any `yaml:"params"`
	Priority   int            `yaml:"priority"`
	DependsOn  []string       `yaml:"depends_on"`
	MaxRetries *int           `yaml:"max_retries"`
	RetryDelay string         `yaml:"retry_delay"`
	Timeout    string         `yaml:"timeout"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Parse parses plan YAML. Missing call ids are generated; the plan name
// defaults to "plan".
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if p.Name == "" {
		p.Name = "plan"
	}
	for i := range p.Calls {
		if p.Calls[i].ID == "" {
			p.Calls[i].ID = "call_" + uuid.New().String()[:8]
		}
	}
	return &p, nil
}

// Validate checks the plan for structural errors: duplicate or empty ids,
// missing tool names, unparseable durations, self-dependencies, and
// dependency cycles. It returns the topological execution order and a list
// of warnings (dependencies on ids outside the plan, which can never be
// satisfied and would stall their dependents).
func (p *Plan) Validate() (order []string, warnings []string, err error) {
	seen := make(map[string]bool, len(p.Calls))
	for i := range p.Calls {
		c := &p.Calls[i]
		if seen[c.ID] {
			return nil, nil, fmt.Errorf("duplicate call id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Tool == "" {
			return nil, nil, fmt.Errorf("call %q: tool name is required", c.ID)
		}
		if _, err := c.retryDelay(); err != nil {
			return nil, nil, fmt.Errorf("call %q: %w", c.ID, err)
		}
		if _, err := c.timeout(); err != nil {
			return nil, nil, fmt.Errorf("call %q: %w", c.ID, err)
		}
		for _, dep := range c.DependsOn {
			if dep == c.ID {
				return nil, nil, &model.CycleError{CallIDs: []string{c.ID}}
			}
		}
	}

	for i := range p.Calls {
		for _, dep := range p.Calls[i].DependsOn {
			if !seen[dep] {
				warnings = append(warnings,
					fmt.Sprintf("call %q depends on %q, which is not in the plan and will stall it", p.Calls[i].ID, dep))
			}
		}
	}

	order, err = topoSort(p.Calls)
	if err != nil {
		return nil, nil, err
	}
	return order, warnings, nil
}

// ToolCalls converts the plan to scheduler records. Validate should be
// called first.
func (p *Plan) ToolCalls() ([]*model.ToolCall, error) {
	out := make([]*model.ToolCall, 0, len(p.Calls))
	for i := range p.Calls {
		c := &p.Calls[i]

		tc := &model.ToolCall{
			ID:         c.ID,
			Name:       c.Tool,
			Parameters: c.Params,
			Priority:   c.Priority,
			DependsOn:  append([]string(nil), c.DependsOn...),
			MaxRetries: c.MaxRetries,
		}
		if d, err := c.retryDelay(); err != nil {
			return nil, fmt.Errorf("call %q: %w", c.ID, err)
		} else if d > 0 {
			tc.RetryDelay = &d
		}
		if d, err := c.timeout(); err != nil {
			return nil, fmt.Errorf("call %q: %w", c.ID, err)
		} else if d > 0 {
			tc.Timeout = &d
		}
		out = append(out, tc)
	}
	return out, nil
}

func (c *Call) retryDelay() (time.Duration, error) {
	return parseDuration("retry_delay", c.RetryDelay)
}

func (c *Call) timeout() (time.Duration, error) {
	return parseDuration("timeout", c.Timeout)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, s)
	}
	return d, nil
}
