package notify

import (
	"fmt"
	"sort"
	"strings"

	"netrunner/internal/smoketest"
)

// PullRequestRepo is where related PR numbers point.
const PullRequestRepo = "maidsafe/autonomi"

const reportTimeLayout = "2006-01-02 15:04:05"

// DeploymentReport renders a deployment with its smoke-test results.
func DeploymentReport(v DeploymentView) string {
	var lines []string
	title := fmt.Sprintf("*%s*", v.Name)
	if v.Repost {
		title += " (repost)"
	}
	lines = append(lines, title, "")
	if v.Description != "" {
		lines = append(lines, v.Description)
	}
	lines = append(lines, "", "```")
	lines = append(lines, deploymentDetails(v)...)
	lines = append(lines, "```", "", "---", "", "*SMOKE TEST RESULTS*")
	lines = append(lines, smokeTestLines(v)...)
	return strings.Join(lines, "\n")
}

// ComparisonReport renders the REF/TESTn comparison body.
func ComparisonReport(v ComparisonView) string {
	var lines []string
	lines = append(lines, "*ENVIRONMENT COMPARISON*", "")
	if v.Repost {
		lines[0] += " (repost)"
	}
	if v.Description != "" {
		lines = append(lines, v.Description, "")
	}
	if v.ThreadLink != "" {
		lines = append(lines, "Slack thread: "+v.ThreadLink)
	}

	lines = append(lines, memberHeading("REF", v.Ref))
	for i, m := range v.Tests {
		lines = append(lines, memberHeading(fmt.Sprintf("TEST%d", i+1), m))
	}
	lines = append(lines, "", "---", "")

	for i, m := range v.Tests {
		lines = append(lines, memberHeading(fmt.Sprintf("TEST%d", i+1), m), "```")
		lines = append(lines, deploymentDetails(m.Deployment)...)
		lines = append(lines, "```", "")
	}
	lines = append(lines, memberHeading("REF", v.Ref), "```")
	lines = append(lines, deploymentDetails(v.Ref.Deployment)...)
	lines = append(lines, "```")

	return strings.Join(lines, "\n")
}

// ComparisonSmokeTestReport renders the smoke-test results of every
// member, tests first.
func ComparisonSmokeTestReport(v ComparisonView) string {
	lines := []string{"*SMOKE TEST RESULTS*", ""}
	for i, m := range v.Tests {
		lines = append(lines, memberHeading(fmt.Sprintf("TEST%d", i+1), m))
		lines = append(lines, smokeTestLines(m.Deployment)...)
		lines = append(lines, "", "---", "")
	}
	lines = append(lines, memberHeading("REF", v.Ref))
	lines = append(lines, smokeTestLines(v.Ref.Deployment)...)
	return strings.Join(lines, "\n")
}

func memberHeading(tag string, m MemberView) string {
	return fmt.Sprintf("*%s*: %s [`%s`]", tag, m.Label, m.Deployment.Name)
}

func deploymentDetails(v DeploymentView) []string {
	lines := []string{
		"Deployed: " + v.CreatedAt.UTC().Format(reportTimeLayout),
		fmt.Sprintf("Network ID: %d", v.NetworkID),
	}
	if v.EnvironmentType != "" {
		lines = append(lines, "Environment Type: "+v.EnvironmentType)
	}
	lines = append(lines, "Workflow run: "+v.RunURL)
	lines = append(lines, "Outcome: "+Outcome(v.Status, v.Conclusion))
	if v.Destroyed {
		lines = append(lines, "Destroyed: yes")
	}
	if v.RelatedPR != nil {
		lines = append(lines,
			fmt.Sprintf("Related PR: #%d", *v.RelatedPR),
			fmt.Sprintf("Link: https://github.com/%s/pull/%d", PullRequestRepo, *v.RelatedPR))
	}

	if len(v.Inputs) > 0 {
		lines = append(lines, "===============", "Workflow Inputs", "===============")
		keys := make([]string, 0, len(v.Inputs))
		for k := range v.Inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s", k, v.Inputs[k]))
		}
	}
	return lines
}

func smokeTestLines(v DeploymentView) []string {
	if len(v.SmokeTestAnswers) == 0 {
		return []string{"No smoke test results recorded"}
	}
	lines := make([]string, 0, len(v.SmokeTestAnswers))
	for _, qa := range v.SmokeTestAnswers {
		lines = append(lines, fmt.Sprintf("%s  %s", Mark(qa.Answer), qa.Question.Text))
	}
	return lines
}

// Mark is the chat glyph for an answer.
func Mark(a smoketest.Answer) string {
	switch a {
	case smoketest.Yes:
		return "✅ "
	case smoketest.No:
		return "❌ "
	case smoketest.NA:
		return "N/A"
	default:
		return "?"
	}
}

// Outcome renders a run status and conclusion as one word.
func Outcome(status, conclusion string) string {
	if status == "completed" && conclusion != "" {
		return conclusion
	}
	if status == "" {
		return "unknown"
	}
	return status
}
