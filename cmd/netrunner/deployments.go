package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"netrunner/internal/deployment"
	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/smoketest"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var deploymentsCmd = &cobra.Command{
	Use:     "deployments",
	Aliases: []string{"deployment", "dep"},
	Short:   "Inspect and manage recorded deployments",
	GroupID: "records",
}

var (
	depListAll        bool
	depListName       string
	depListUnfinished bool
	depListDetails    bool
	depPrintCopy      bool
	depStatusAll      bool
)

var deploymentsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List deployments",
	Args:  cobra.NoArgs,
	RunE:  runDeploymentsLs,
}

var deploymentsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a deployment as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsGet,
}

var deploymentsPrintCmd = &cobra.Command{
	Use:   "print ID",
	Short: "Print the deployment report",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsPrint,
}

var deploymentsSmokeTestCmd = &cobra.Command{
	Use:   "smoke-test ID",
	Short: "Run the smoke test questionnaire for a deployment",
	Long: `Ask each smoke test question and record the answers. Answer y, n or na.
After a "no" you can abandon the test; remaining questions are recorded as N/A.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploymentsSmokeTest,
}

var deploymentsPostCmd = &cobra.Command{
	Use:   "post ID",
	Short: "Post the deployment report to Slack",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsPost,
}

var deploymentsStatusCmd = &cobra.Command{
	Use:   "status [ID]",
	Short: "Refresh the run outcome of one or all unfinished deployments",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDeploymentsStatus,
}

var deploymentsMarkDestroyedCmd = &cobra.Command{
	Use:   "mark-destroyed NAME",
	Short: "Mark the active deployment with this name destroyed",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsMarkDestroyed,
}

func init() {
	deploymentsLsCmd.Flags().BoolVarP(&depListAll, "all", "a", false, "Include destroyed deployments")
	deploymentsLsCmd.Flags().StringVar(&depListName, "name", "", "Only deployments with this network name")
	deploymentsLsCmd.Flags().BoolVar(&depListUnfinished, "unfinished", false, "Only deployments whose run has not completed")
	deploymentsLsCmd.Flags().BoolVar(&depListDetails, "details", false, "Show run links and descriptions")
	deploymentsPrintCmd.Flags().BoolVar(&depPrintCopy, "copy", false, "Copy the report to the clipboard")
	deploymentsStatusCmd.Flags().BoolVar(&depStatusAll, "all", false, "Refresh every unfinished run")

	deploymentsCmd.AddCommand(deploymentsLsCmd)
	deploymentsCmd.AddCommand(deploymentsGetCmd)
	deploymentsCmd.AddCommand(deploymentsPrintCmd)
	deploymentsCmd.AddCommand(deploymentsSmokeTestCmd)
	deploymentsCmd.AddCommand(deploymentsPostCmd)
	deploymentsCmd.AddCommand(deploymentsStatusCmd)
	deploymentsCmd.AddCommand(deploymentsMarkDestroyedCmd)
}

func runDeploymentsLs(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	deployments, err := a.hist.ListDeployments(cmd.Context(), history.DeploymentFilter{
		Name:       depListName,
		ActiveOnly: !depListAll,
		Unfinished: depListUnfinished,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(deployments) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No deployments recorded"))
		return nil
	}
	fmt.Fprint(out, deploymentTable(deployments, depListDetails, time.Now()))
	return nil
}

func deploymentTable(deployments []history.Deployment, details bool, now time.Time) string {
	header := []string{"ID", "NAME", "ENV", "CREATED", "OUTCOME", "SMOKE TEST"}
	if details {
		header = append(header, "RUN", "DESCRIPTION")
	}

	rows := make([][]string, 0, len(deployments))
	for i := range deployments {
		d := &deployments[i]
		outcome := notify.Outcome(d.RunStatus, d.Conclusion())
		name := nameStyle.Render(d.Name)
		if !d.Active() {
			name = mutedStyle.Render(d.Name + " (destroyed)")
		}
		row := []string{
			strconv.FormatInt(d.ID, 10),
			name,
			d.EnvironmentType,
			age(d.CreatedAt, now),
			outcomeStyle(outcome).Render(outcome),
			smokeTestStyle(d.SmokeTest).Render(string(d.SmokeTest)),
		}
		if details {
			desc := ""
			if d.Description != nil {
				desc = *d.Description
			}
			row = append(row, d.RunURL, desc)
		}
		rows = append(rows, row)
	}
	return table(header, rows)
}

func runDeploymentsGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.hist.GetDeployment(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), d)
}

func runDeploymentsPrint(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.hist.GetDeployment(cmd.Context(), id)
	if err != nil {
		return err
	}
	report := notify.DeploymentReport(notify.NewDeploymentView(d, d.Posted))
	return emitReport(cmd.OutOrStdout(), report, depPrintCopy)
}

func runDeploymentsSmokeTest(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.hist.GetDeployment(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Smoke test for %s (deployment %d)\n\n", nameStyle.Render(d.Name), d.ID)
	answers, err := smoketest.NewQuestionnaire(smoketest.DefaultQuestions, cmd.InOrStdin(), out).Run()
	if err != nil {
		return err
	}

	result, err := a.hist.RecordSmokeTestResult(cmd.Context(), d.ID, answers)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSmoke test %s\n", smokeTestStyle(result).Render(string(result)))
	return nil
}

func runDeploymentsPost(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	notifier, err := a.notifier()
	if err != nil {
		return err
	}

	d, err := a.hist.GetDeployment(cmd.Context(), id)
	if err != nil {
		return err
	}
	if err := notifier.NotifyDeployment(cmd.Context(), notify.NewDeploymentView(d, d.Posted)); err != nil {
		return err
	}
	if _, err := a.hist.MarkPosted(cmd.Context(), d.ID); err != nil {
		return err
	}

	verb := "Posted"
	if d.Posted {
		verb = "Reposted"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s deployment %d (%s) to Slack\n", verb, d.ID, d.Name)
	return nil
}

func runDeploymentsStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !depStatusAll {
		return newUsageError("pass a deployment ID or --all")
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.client()
	if err != nil {
		return err
	}
	refresher := deployment.NewRefresher(client, a.hist, nil, a.logger)
	out := cmd.OutOrStdout()

	if depStatusAll {
		summary, err := refresher.RefreshAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Checked %d run(s): %d updated, %d completed, %d failed to refresh\n",
			summary.Checked, summary.Updated, summary.Completed, summary.Failed)
		return nil
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	d, err := a.hist.GetDeployment(cmd.Context(), id)
	if err != nil {
		return err
	}
	run, err := refresher.RefreshRun(cmd.Context(), d.RunID)
	if err != nil {
		return err
	}
	outcome := notify.Outcome(string(run.Status), run.Conclusion)
	fmt.Fprintf(out, "%s: %s\n  Run: %s\n", nameStyle.Render(d.Name), outcomeStyle(outcome).Render(outcome), d.RunURL)
	return nil
}

func runDeploymentsMarkDestroyed(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.hist.MarkDestroyed(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked deployment %d (%s) destroyed\n", d.ID, d.Name)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, newUsageError("invalid id %q", s)
	}
	return id, nil
}

// emitReport prints a report and optionally copies it to the clipboard.
func emitReport(out io.Writer, report string, copyToClipboard bool) error {
	fmt.Fprintln(out, report)
	if !copyToClipboard {
		return nil
	}
	if err := clipboard.WriteAll(report); err != nil {
		return fmt.Errorf("failed to copy report to clipboard: %w", err)
	}
	fmt.Fprintln(out, mutedStyle.Render("Report copied to clipboard"))
	return nil
}
