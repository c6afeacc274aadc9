package history

import (
	"time"

	"netrunner/internal/smoketest"
)

// Deployment is one launched network environment bound to exactly one run.
type Deployment struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	NetworkID       int               `json:"network_id"`
	EnvironmentType string            `json:"environment_type,omitempty"`
	Workflow        string            `json:"workflow"`
	Ref             string            `json:"ref"`
	RunID           int64             `json:"run_id"`
	RunURL          string            `json:"run_url"`
	CreatedAt       time.Time         `json:"created_at"`
	RelatedPR       *int              `json:"related_pr,omitempty"`  // nullable
	Description     *string           `json:"description,omitempty"` // nullable
	Inputs          map[string]string `json:"inputs,omitempty"`

	// Snapshot of the bound run, refreshed by the poller.
	RunStatus     string  `json:"run_status"`
	RunConclusion *string `json:"run_conclusion,omitempty"`

	SmokeTest        smoketest.Result  `json:"smoke_test"`
	SmokeTestAnswers smoketest.Answers `json:"smoke_test_answers,omitempty"`
	SmokeTestedAt    *time.Time        `json:"smoke_tested_at,omitempty"`

	Posted      bool       `json:"posted"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	DestroyedAt *time.Time `json:"destroyed_at,omitempty"`
}

// Active reports whether the deployment has not been destroyed.
func (d *Deployment) Active() bool {
	return d.DestroyedAt == nil
}

// Finished reports whether the bound run has completed.
func (d *Deployment) Finished() bool {
	return d.RunStatus == "completed"
}

// Conclusion returns the run conclusion or "" while unfinished.
func (d *Deployment) Conclusion() string {
	if d.RunConclusion == nil {
		return ""
	}
	return *d.RunConclusion
}

// DeploymentFilter narrows ListDeployments.
type DeploymentFilter struct {
	Name       string
	ActiveOnly bool
	Unfinished bool
}

// WorkflowRunRecord is one correlated dispatch of any workflow.
type WorkflowRunRecord struct {
	ID            int64             `json:"id"`
	Workflow      string            `json:"workflow"`
	NetworkName   string            `json:"network_name"`
	Ref           string            `json:"ref"`
	RunID         int64             `json:"run_id"`
	RunURL        string            `json:"run_url"`
	Inputs        map[string]string `json:"inputs,omitempty"`
	TriggeredAt   time.Time         `json:"triggered_at"`
	RunStatus     string            `json:"run_status"`
	RunConclusion *string           `json:"run_conclusion,omitempty"`
}

// WorkflowRunFilter narrows ListWorkflowRuns.
type WorkflowRunFilter struct {
	Workflow    string
	NetworkName string
	Unfinished  bool
}

// Comparison groups deployments for side-by-side review. The first member
// is the reference.
type Comparison struct {
	ID          int64              `json:"id"`
	Label       string             `json:"label"`
	Description *string            `json:"description,omitempty"`
	ThreadLink  *string            `json:"thread_link,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Members     []ComparisonMember `json:"members"`
	Reports     []ComparisonReport `json:"reports,omitempty"`
	Result      *ComparisonResult  `json:"result,omitempty"`
}

// ComparisonResult is the verdict of a finished comparison run. Recording
// it again replaces the earlier verdict.
type ComparisonResult struct {
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Report     string    `json:"report"`
	Passed     bool      `json:"passed"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ComparisonMember is one deployment in a comparison.
type ComparisonMember struct {
	Position     int         `json:"position"`
	DeploymentID int64       `json:"deployment_id"`
	Label        string      `json:"label,omitempty"`
	Deployment   *Deployment `json:"deployment,omitempty"`
}

// ComparisonReport is a generated artifact appended to a comparison.
type ComparisonReport struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewComparison is the input to CreateComparison.
type NewComparison struct {
	Label       string
	Description string
	ThreadLink  string
	Members     []MemberInput
}

// MemberInput names a deployment and its label within a comparison.
type MemberInput struct {
	DeploymentID int64
	Label        string
}
