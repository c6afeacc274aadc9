package actions

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ConclusionSuccess is the only conclusion treated as a successful run.
const ConclusionSuccess = "success"

// Workflow identifies a workflow by numeric id ("144945387") or by
// file name ("launch-network.yml").
type Workflow string

// ID returns the numeric workflow id, if the identifier is one.
func (w Workflow) ID() (int64, bool) {
	id, err := strconv.ParseInt(string(w), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (w Workflow) String() string { return string(w) }

// Run is a read-only snapshot of a remote workflow run.
type Run struct {
	ID           int64     `json:"id"`
	WorkflowID   int64     `json:"workflow_id"`
	Name         string    `json:"name"`
	DisplayTitle string    `json:"display_title"`
	Ref          string    `json:"ref"`
	Event        string    `json:"event"`
	Status       Status    `json:"status"`
	Conclusion   string    `json:"conclusion,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	URL          string    `json:"url"`
	LogsURL      string    `json:"logs_url,omitempty"`
}

// Completed reports whether the run reached its terminal state.
func (r *Run) Completed() bool {
	return r.Status == StatusCompleted
}

// Succeeded reports whether the run completed with a success conclusion.
func (r *Run) Succeeded() bool {
	return r.Completed() && r.Conclusion == ConclusionSuccess
}

// DispatchRequest is a workflow_dispatch call. DispatchedAt is stamped by
// the client immediately before the request is sent.
type DispatchRequest struct {
	Workflow     Workflow
	Ref          string
	Inputs       map[string]string
	DispatchedAt time.Time
}

// DispatchAck confirms the provider accepted a dispatch. It carries no run
// id; the run has to be correlated separately.
type DispatchAck struct {
	Workflow     Workflow
	Ref          string
	DispatchedAt time.Time
}

// NormalizeRef strips the refs/heads/ prefix so refs compare equal to the
// head branch GitHub reports on runs.
func NormalizeRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// RunURL builds the browser URL of a run.
func RunURL(owner, repo string, runID int64) string {
	return "https://github.com/" + owner + "/" + repo + "/actions/runs/" + strconv.FormatInt(runID, 10)
}

// normalizeStatus folds the provider's pre-start statuses into queued.
func normalizeStatus(s string) Status {
	switch s {
	case "in_progress":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	default:
		// queued, waiting, requested, pending
		return StatusQueued
	}
}
