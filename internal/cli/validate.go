package cli

import (
	"fmt"
	"strings"

	"github.com/me/toolflow/internal/plan"
	"github.com/me/toolflow/internal/toolexec"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Check a plan for cycles, duplicate ids, and unknown tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}
			order, warnings, err := p.Validate()
			if err != nil {
				return err
			}

			registry := toolexec.NewDefaultRegistry(logger)
			for _, c := range p.Calls {
				if !registry.Has(c.Tool) {
					warnings = append(warnings, fmt.Sprintf("call %q uses unregistered tool %q", c.ID, c.Tool))
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plan: %s\n", p.Name)
			fmt.Fprintf(out, "calls: %d\n", len(p.Calls))
			fmt.Fprintf(out, "execution order: %s\n", strings.Join(order, " -> "))
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			fmt.Fprintln(out, "plan is valid")
			return nil
		},
	}
	return cmd
}
