package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/me/toolflow/internal/expr"
	"github.com/me/toolflow/internal/plan"
	"github.com/me/toolflow/internal/runlog"
	"github.com/me/toolflow/internal/scheduler"
	"github.com/me/toolflow/internal/server"
	"github.com/me/toolflow/internal/toolexec"
	"github.com/me/toolflow/pkg/model"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		maxConcurrent int
		maxRetries    int
		retryDelay    time.Duration
		callTimeout   time.Duration
		runTimeout    time.Duration
		noCascade     bool
		noHistory     bool
		listen        string
	)

	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan of tool calls",
		Long: `Loads a YAML plan, validates its dependency graph, and executes every
call respecting dependencies, priorities, and the concurrency ceiling.
Results are written to stdout as JSON; progress goes to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}
			_, warnings, err := p.Validate()
			if err != nil {
				return err
			}
			for _, w := range warnings {
				logger.Warn(w)
			}
			calls, err := p.ToolCalls()
			if err != nil {
				return err
			}

			cfg := scheduler.Config{
				MaxConcurrent: maxConcurrent,
				MaxRetries:    maxRetries,
				RetryDelay:    retryDelay,
				Timeout:       callTimeout,
				CascadeAbort:  !noCascade,
				AutoBootstrap: true,
			}

			registry := toolexec.NewDefaultRegistry(logger)
			evaluator := expr.NewEvaluator()

			// The handler closes over sched so templates can read the
			// outputs of completed dependencies.
			var sched *scheduler.Scheduler
			handler := func(ctx context.Context, call *model.ToolCall) (any, error) {
				resolved, err := resolveCallParams(evaluator, sched, call)
				if err != nil {
					return nil, err
				}
				call.Parameters = resolved
				return registry.Dispatch(ctx, call)
			}
			sched = scheduler.New(cfg, handler, logger)

			var history runlog.Store
			if !noHistory {
				if err := os.MkdirAll(filepath.Dir(flagDBPath), 0o755); err == nil {
					history, err = runlog.NewSQLiteStore(flagDBPath, logger)
					if err != nil {
						logger.Warn("run history disabled", "error", err)
						history = nil
					}
				}
				if history != nil {
					defer history.Close()
				}
			}

			var monitor *http.Server
			if listen != "" {
				srvOpts := []server.Option{}
				if history != nil {
					srvOpts = append(srvOpts, server.WithHistory(history))
				}
				monitor = &http.Server{
					Addr:    listen,
					Handler: server.New(sched, logger, srvOpts...),
				}
				go func() {
					logger.Info("monitor listening", "addr", listen)
					if err := monitor.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("monitor server", "error", err)
					}
				}()
			}

			started := time.Now().UTC()
			sched.ScheduleAll(calls)

			waitCtx := context.Background()
			if runTimeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(waitCtx, runTimeout)
				defer cancel()
			}

			// Surface calls that can never run instead of hanging silently.
			watchdog := time.NewTicker(5 * time.Second)
			defer watchdog.Stop()
			watchdogDone := make(chan struct{})
			defer close(watchdogDone)
			go func() {
				for {
					select {
					case <-watchdogDone:
						return
					case <-watchdog.C:
						if stalled := sched.Stalled(); len(stalled) > 0 {
							logger.Warn("calls stalled on failed or unknown dependencies", "call_ids", stalled)
						}
					}
				}
			}()

			if err := sched.Wait(waitCtx); err != nil {
				sched.AbortAll("run timeout")
				logger.Error("run timed out", "timeout", runTimeout)
			}
			finished := time.Now().UTC()

			if monitor != nil {
				shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				monitor.Shutdown(shutCtx)
				cancel()
			}

			stats := sched.Stats()
			if history != nil {
				if err := recordRun(history, p.Name, stats, sched, started, finished); err != nil {
					logger.Warn("record run history", "error", err)
				}
			}

			if err := printResults(cmd, sched); err != nil {
				return err
			}
			logger.Info("run finished",
				"completed", stats.Completed,
				"failed", stats.Failed,
				"aborted", stats.Aborted,
				"duration", finished.Sub(started).String(),
			)

			if stats.Failed+stats.Aborted > 0 {
				return fmt.Errorf("%d of %d calls did not complete", stats.Failed+stats.Aborted, stats.TotalScheduled)
			}
			return nil
		},
	}

	defaults := scheduler.DefaultConfig()
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", defaults.MaxConcurrent, "Concurrency ceiling")
	cmd.Flags().IntVar(&maxRetries, "max-retries", defaults.MaxRetries, "Default retry budget per call")
	cmd.Flags().DurationVar(&retryDelay, "retry-delay", defaults.RetryDelay, "Base backoff delay")
	cmd.Flags().DurationVar(&callTimeout, "timeout", defaults.Timeout, "Default per-call timeout")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "Overall run timeout, 0 for none")
	cmd.Flags().BoolVar(&noCascade, "no-cascade", false, "Do not abort dependents when a call fails")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history database")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the monitor API on this address during the run")

	return cmd
}

// resolveCallParams evaluates $(...) templates against the outputs of the
// call's completed dependencies.
func resolveCallParams(evaluator *expr.Evaluator, sched *scheduler.Scheduler, call *model.ToolCall) (map[string]any, error) {
	deps := make(map[string]any, len(call.DependsOn))
	for _, dep := range call.DependsOn {
		if res, ok := sched.Result(dep); ok {
			deps[dep] = map[string]any{"output": res.Output, "error": res.Error}
		}
	}
	ctx := &expr.Context{
		Deps: deps,
		Call: map[string]any{"id": call.ID, "name": call.Name},
	}
	return evaluator.ResolveParams(call.Parameters, ctx)
}

func recordRun(history runlog.Store, planName string, stats model.Statistics, sched *scheduler.Scheduler, started, finished time.Time) error {
	status := runlog.RunStatusSucceeded
	switch {
	case stats.Failed > 0:
		status = runlog.RunStatusFailed
	case stats.Aborted > 0:
		status = runlog.RunStatusAborted
	}

	results := make([]*model.ExecutionResult, 0, stats.TotalScheduled)
	for _, cs := range sched.Snapshot() {
		if cs.Result != nil {
			results = append(results, cs.Result)
		}
	}

	run := &runlog.Run{
		ID:         "run_" + uuid.New().String()[:8],
		PlanName:   planName,
		Status:     status,
		Total:      stats.TotalScheduled,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Aborted:    stats.Aborted,
		StartedAt:  started,
		FinishedAt: finished,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return history.RecordRun(ctx, run, results)
}

func printResults(cmd *cobra.Command, sched *scheduler.Scheduler) error {
	out := make(map[string]*model.ExecutionResult)
	for id, res := range sched.Results() {
		out[id] = res
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
