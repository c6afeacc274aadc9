package main

import (
	"fmt"

	"netrunner/internal/deployment"
	"netrunner/internal/inputs"

	"github.com/spf13/cobra"
)

// newWorkflowCmd builds the command for a dispatch-only workflow. The run
// is correlated and logged like any other but no deployment is touched.
func newWorkflowCmd(wf inputs.Workflow) *cobra.Command {
	flags := &workflowFlags{workflow: wf.Name}
	cmd := &cobra.Command{
		Use:     wf.Name,
		Short:   wf.Short,
		GroupID: "maintenance",
		Long: fmt.Sprintf(`Dispatch the %s workflow with the inputs from a YAML file and log the
run it created. Browse logged runs with 'netrunner ls --workflow %s'.`, wf.Name, wf.Name),
		Example: fmt.Sprintf("  netrunner %s -i dev-01.yml --wait", wf.Name),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, deployment.KindDispatch, flags)
		},
	}
	addWorkflowFlags(cmd, flags)
	return cmd
}
