package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/security"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

var comparisonsCmd = &cobra.Command{
	Use:     "comparisons",
	Aliases: []string{"comparison", "cmp"},
	Short:   "Group deployments for side-by-side review",
	GroupID: "records",
}

var (
	cmpNewLabel       string
	cmpNewDescription string
	cmpNewThread      string
	cmpPrintCopy      bool
	cmpPrintSmokeTest bool
	cmpReportFile     string
	cmpResultStarted  string
	cmpResultEnded    string
	cmpResultReport   string
	cmpResultPassed   bool
	cmpResultFailed   bool
)

var comparisonsNewCmd = &cobra.Command{
	Use:   "new REF_ID[=LABEL] TEST_ID[=LABEL]...",
	Short: "Create a comparison; the first deployment is the reference",
	Example: `  netrunner comparisons new 12=main 14=rc-1 --label "2025.3 release candidate"`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runComparisonsNew,
}

var comparisonsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List comparisons",
	Args:  cobra.NoArgs,
	RunE:  runComparisonsLs,
}

var comparisonsPrintCmd = &cobra.Command{
	Use:   "print ID",
	Short: "Print the comparison report",
	Args:  cobra.ExactArgs(1),
	RunE:  runComparisonsPrint,
}

var comparisonsPostCmd = &cobra.Command{
	Use:   "post ID",
	Short: "Post the comparison and its smoke test results to Slack",
	Args:  cobra.ExactArgs(1),
	RunE:  runComparisonsPost,
}

var comparisonsAddThreadCmd = &cobra.Command{
	Use:   "add-thread ID LINK",
	Short: "Attach the Slack thread link to a comparison",
	Args:  cobra.ExactArgs(2),
	RunE:  runComparisonsAddThread,
}

var comparisonsAddReportCmd = &cobra.Command{
	Use:   "add-report ID",
	Short: "Append a report to a comparison (from --file or stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runComparisonsAddReport,
}

var comparisonsRecordResultsCmd = &cobra.Command{
	Use:   "record-results ID",
	Short: "Record when a comparison ran, its report and whether it passed",
	Example: `  netrunner comparisons record-results 4 --started-at 2025-03-02T09:00:00 \
      --ended-at 2025-03-02T15:00:00 --report report.html --passed`,
	Args: cobra.ExactArgs(1),
	RunE: runComparisonsRecordResults,
}

func init() {
	comparisonsNewCmd.Flags().StringVarP(&cmpNewLabel, "label", "l", "", "Title of the comparison (required)")
	comparisonsNewCmd.Flags().StringVarP(&cmpNewDescription, "description", "d", "", "What is being compared")
	comparisonsNewCmd.Flags().StringVar(&cmpNewThread, "thread", "", "Slack thread link")
	comparisonsNewCmd.MarkFlagRequired("label")
	comparisonsPrintCmd.Flags().BoolVar(&cmpPrintCopy, "copy", false, "Copy the report to the clipboard")
	comparisonsPrintCmd.Flags().BoolVar(&cmpPrintSmokeTest, "smoke-test", false, "Print the smoke test results instead")
	comparisonsAddReportCmd.Flags().StringVarP(&cmpReportFile, "file", "f", "", "Read the report from this file")

	rf := comparisonsRecordResultsCmd.Flags()
	rf.StringVar(&cmpResultStarted, "started-at", "", "When the comparison started (ISO 8601, UTC unless an offset is given)")
	rf.StringVar(&cmpResultEnded, "ended-at", "", "When the comparison ended")
	rf.StringVar(&cmpResultReport, "report", "", "Path to the report file")
	rf.BoolVar(&cmpResultPassed, "passed", false, "The comparison passed")
	rf.BoolVar(&cmpResultFailed, "failed", false, "The comparison failed")
	comparisonsRecordResultsCmd.MarkFlagRequired("started-at")
	comparisonsRecordResultsCmd.MarkFlagRequired("ended-at")
	comparisonsRecordResultsCmd.MarkFlagRequired("report")
	comparisonsRecordResultsCmd.MarkFlagsMutuallyExclusive("passed", "failed")
	comparisonsRecordResultsCmd.MarkFlagsOneRequired("passed", "failed")

	comparisonsCmd.AddCommand(comparisonsNewCmd)
	comparisonsCmd.AddCommand(comparisonsLsCmd)
	comparisonsCmd.AddCommand(comparisonsPrintCmd)
	comparisonsCmd.AddCommand(comparisonsPostCmd)
	comparisonsCmd.AddCommand(comparisonsAddThreadCmd)
	comparisonsCmd.AddCommand(comparisonsAddReportCmd)
	comparisonsCmd.AddCommand(comparisonsRecordResultsCmd)
}

// parseMembers reads ID or ID=LABEL arguments.
func parseMembers(args []string) ([]history.MemberInput, error) {
	members := make([]history.MemberInput, 0, len(args))
	for _, arg := range args {
		idPart, label, _ := strings.Cut(arg, "=")
		id, err := parseID(idPart)
		if err != nil {
			return nil, err
		}
		members = append(members, history.MemberInput{DeploymentID: id, Label: strings.TrimSpace(label)})
	}
	return members, nil
}

func runComparisonsNew(cmd *cobra.Command, args []string) error {
	members, err := parseMembers(args)
	if err != nil {
		return err
	}
	if cmpNewThread != "" {
		if err := security.ValidateThreadLink(cmpNewThread); err != nil {
			return newUsageError("%v", err)
		}
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.hist.CreateComparison(cmd.Context(), history.NewComparison{
		Label:       cmpNewLabel,
		Description: cmpNewDescription,
		ThreadLink:  cmpNewThread,
		Members:     members,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Comparison %d created with %d deployments\n", c.ID, len(c.Members))
	return nil
}

func runComparisonsLs(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	comparisons, err := a.hist.ListComparisons(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(comparisons) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No comparisons recorded"))
		return nil
	}
	fmt.Fprint(out, comparisonTable(comparisons, time.Now()))
	return nil
}

func comparisonTable(comparisons []history.Comparison, now time.Time) string {
	rows := make([][]string, 0, len(comparisons))
	for i := range comparisons {
		c := &comparisons[i]
		names := make([]string, 0, len(c.Members))
		for _, m := range c.Members {
			if m.Deployment != nil {
				names = append(names, m.Deployment.Name)
			}
		}
		thread := mutedStyle.Render("-")
		if c.ThreadLink != nil {
			thread = *c.ThreadLink
		}
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10),
			nameStyle.Render(c.Label),
			strings.Join(names, ", "),
			age(c.CreatedAt, now),
			strconv.Itoa(len(c.Reports)),
			thread,
		})
	}
	return table([]string{"ID", "LABEL", "DEPLOYMENTS", "CREATED", "REPORTS", "THREAD"}, rows)
}

func loadComparisonView(cmd *cobra.Command, a *app, arg string) (*history.Comparison, notify.ComparisonView, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, notify.ComparisonView{}, err
	}
	c, err := a.hist.GetComparison(cmd.Context(), id)
	if err != nil {
		return nil, notify.ComparisonView{}, err
	}
	v, err := notify.NewComparisonView(c)
	if err != nil {
		return nil, notify.ComparisonView{}, err
	}
	return c, v, nil
}

func runComparisonsPrint(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	_, v, err := loadComparisonView(cmd, a, args[0])
	if err != nil {
		return err
	}
	report := notify.ComparisonReport(v)
	if cmpPrintSmokeTest {
		report = notify.ComparisonSmokeTestReport(v)
	}
	return emitReport(cmd.OutOrStdout(), report, cmpPrintCopy)
}

func runComparisonsPost(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	notifier, err := a.notifier()
	if err != nil {
		return err
	}
	c, v, err := loadComparisonView(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := notifier.NotifyComparison(cmd.Context(), v); err != nil {
		return err
	}

	// The posted text is kept as a report so later posts count as reposts.
	if _, err := a.hist.AppendReport(cmd.Context(), c.ID, notify.ComparisonReport(v)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Posted comparison %d (%s) to Slack\n", c.ID, c.Label)
	return nil
}

func runComparisonsAddThread(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := security.ValidateThreadLink(args[1]); err != nil {
		return newUsageError("%v", err)
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.hist.SetThreadLink(cmd.Context(), id, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Thread link set on comparison %d\n", id)
	return nil
}

func runComparisonsAddReport(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var body []byte
	if cmpReportFile != "" {
		body, err = os.ReadFile(cmpReportFile)
	} else {
		body, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return newUsageError("report is empty")
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.hist.AppendReport(cmd.Context(), id, string(body))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report %d appended to comparison %d\n", r.ID, id)
	return nil
}

// timestampLayouts are tried in order; layouts without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, newUsageError("invalid timestamp %q (expected ISO 8601, e.g. 2025-03-02T09:00:00)", s)
}

func runComparisonsRecordResults(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	started, err := parseTimestamp(cmpResultStarted)
	if err != nil {
		return err
	}
	ended, err := parseTimestamp(cmpResultEnded)
	if err != nil {
		return err
	}
	if ended.Before(started) {
		return newUsageError("--ended-at is before --started-at")
	}
	report, err := os.ReadFile(cmpResultReport)
	if err != nil {
		return newUsageError("failed to read report: %v", err)
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.hist.RecordComparisonResult(cmd.Context(), id, history.ComparisonResult{
		StartedAt: started,
		EndedAt:   ended,
		Report:    string(report),
		Passed:    cmpResultPassed,
	})
	if err != nil {
		return err
	}

	verdict := failureStyle.Render("failed")
	if r.Passed {
		verdict = successStyle.Render("passed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Comparison %d %s over %s\n", id, verdict, units.HumanDuration(r.EndedAt.Sub(r.StartedAt)))
	return nil
}
