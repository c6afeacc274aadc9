package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"netrunner/internal/history"
	"netrunner/internal/notify"

	"github.com/spf13/cobra"
)

var (
	lsWorkflow   string
	lsNetwork    string
	lsDetails    bool
	lsUnfinished bool
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Short:   "List dispatched workflow runs",
	GroupID: "records",
	Args:    cobra.NoArgs,
	RunE:    runLs,
}

func init() {
	lsCmd.Flags().StringVar(&lsWorkflow, "workflow", "", "Only runs of this workflow (e.g. destroy-network, stop-nodes)")
	lsCmd.Flags().StringVar(&lsNetwork, "network", "", "Only runs for this network name")
	lsCmd.Flags().BoolVar(&lsUnfinished, "unfinished", false, "Only runs that have not completed")
	lsCmd.Flags().BoolVar(&lsDetails, "details", false, "Show run links and the inputs each run was dispatched with")
}

func runLs(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.hist.ListWorkflowRuns(cmd.Context(), history.WorkflowRunFilter{
		Workflow:    lsWorkflow,
		NetworkName: lsNetwork,
		Unfinished:  lsUnfinished,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No workflow runs recorded"))
		return nil
	}
	fmt.Fprint(out, runTable(runs, lsDetails, time.Now()))
	return nil
}

func runTable(runs []history.WorkflowRunRecord, details bool, now time.Time) string {
	header := []string{"RUN", "WORKFLOW", "NETWORK", "TRIGGERED", "OUTCOME"}
	if details {
		header = append(header, "URL", "INPUTS")
	}

	rows := make([][]string, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		conclusion := ""
		if r.RunConclusion != nil {
			conclusion = *r.RunConclusion
		}
		outcome := notify.Outcome(r.RunStatus, conclusion)
		network := nameStyle.Render(r.NetworkName)
		if r.NetworkName == "" {
			network = mutedStyle.Render("-")
		}
		row := []string{
			strconv.FormatInt(r.RunID, 10),
			r.Workflow,
			network,
			age(r.TriggeredAt, now),
			outcomeStyle(outcome).Render(outcome),
		}
		if details {
			row = append(row, r.RunURL, formatInputs(r.Inputs))
		}
		rows = append(rows, row)
	}
	return table(header, rows)
}

func formatInputs(in map[string]string) string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+in[k])
	}
	return strings.Join(parts, " ")
}
