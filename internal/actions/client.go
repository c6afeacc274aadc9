// Package actions talks to the GitHub Actions API: dispatching workflows,
// listing and fetching runs, and cancelling them. Calls are not retried
// here; retry belongs to the poller.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const listRunsPageSize = 50

// Options configures a Client.
type Options struct {
	// BaseURL overrides the API endpoint (GitHub Enterprise or tests).
	BaseURL string

	// RequestsPerSecond and Burst pace outgoing calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// Now stamps dispatch requests. Defaults to time.Now.
	Now func() time.Time
}

// Client is a repository-scoped GitHub Actions client.
type Client struct {
	gh      *github.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient creates an authenticated client for owner/repo.
func NewClient(token, owner, repo string, opts Options) (*Client, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	gh := github.NewClient(httpClient)

	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid api base url: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.BaseURL = u
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{gh: gh, owner: owner, repo: repo, limiter: limiter, now: now}, nil
}

// Owner returns the repository owner.
func (c *Client) Owner() string { return c.owner }

// Repo returns the repository name.
func (c *Client) Repo() string { return c.repo }

// RunURL returns the browser URL of a run in this repository.
func (c *Client) RunURL(runID int64) string {
	return RunURL(c.owner, c.repo, runID)
}

// Dispatch triggers a workflow_dispatch event.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchAck, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	inputs := make(map[string]interface{}, len(req.Inputs))
	for k, v := range req.Inputs {
		inputs[k] = v
	}
	event := github.CreateWorkflowDispatchEventRequest{
		Ref:    req.Ref,
		Inputs: inputs,
	}

	// The run cannot predate the request, so stamp before sending.
	dispatchedAt := c.now().UTC()

	var resp *github.Response
	var err error
	if id, ok := req.Workflow.ID(); ok {
		resp, err = c.gh.Actions.CreateWorkflowDispatchEventByID(ctx, c.owner, c.repo, id, event)
	} else {
		resp, err = c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.owner, c.repo, req.Workflow.String(), event)
	}
	if err != nil {
		return nil, remoteError("dispatch workflow "+req.Workflow.String(), resp, err)
	}

	return &DispatchAck{Workflow: req.Workflow, Ref: req.Ref, DispatchedAt: dispatchedAt}, nil
}

// ListRuns returns the workflow_dispatch runs of a workflow on ref created
// at or after since, newest first.
func (c *Client) ListRuns(ctx context.Context, workflow Workflow, ref string, since time.Time) ([]Run, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := &github.ListWorkflowRunsOptions{
		Branch:      NormalizeRef(ref),
		Event:       "workflow_dispatch",
		ListOptions: github.ListOptions{PerPage: listRunsPageSize},
	}
	if !since.IsZero() {
		opts.Created = ">=" + since.UTC().Format("2006-01-02T15:04:05Z")
	}

	var list *github.WorkflowRuns
	var resp *github.Response
	var err error
	if id, ok := workflow.ID(); ok {
		list, resp, err = c.gh.Actions.ListWorkflowRunsByID(ctx, c.owner, c.repo, id, opts)
	} else {
		list, resp, err = c.gh.Actions.ListWorkflowRunsByFileName(ctx, c.owner, c.repo, workflow.String(), opts)
	}
	if err != nil {
		return nil, remoteError("list runs of "+workflow.String(), resp, err)
	}

	runs := make([]Run, 0, len(list.WorkflowRuns))
	for _, wr := range list.WorkflowRuns {
		runs = append(runs, convertRun(wr))
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

// GetRun fetches a single run. It returns ErrNotFound for unknown ids.
func (c *Client) GetRun(ctx context.Context, runID int64) (*Run, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	wr, resp, err := c.gh.Actions.GetWorkflowRunByID(ctx, c.owner, c.repo, runID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("run %d: %w", runID, ErrNotFound)
		}
		return nil, remoteError(fmt.Sprintf("get run %d", runID), resp, err)
	}

	run := convertRun(wr)
	return &run, nil
}

// CancelRun requests cancellation of a run.
func (c *Client) CancelRun(ctx context.Context, runID int64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.gh.Actions.CancelWorkflowRunByID(ctx, c.owner, c.repo, runID)
	if err != nil {
		// GitHub answers 202 Accepted, which go-github reports as an error.
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			return nil
		}
		return remoteError(fmt.Sprintf("cancel run %d", runID), resp, err)
	}
	return nil
}

func convertRun(wr *github.WorkflowRun) Run {
	return Run{
		ID:           wr.GetID(),
		WorkflowID:   wr.GetWorkflowID(),
		Name:         wr.GetName(),
		DisplayTitle: wr.GetDisplayTitle(),
		Ref:          wr.GetHeadBranch(),
		Event:        wr.GetEvent(),
		Status:       normalizeStatus(wr.GetStatus()),
		Conclusion:   wr.GetConclusion(),
		CreatedAt:    wr.GetCreatedAt().Time.UTC(),
		UpdatedAt:    wr.GetUpdatedAt().Time.UTC(),
		URL:          wr.GetHTMLURL(),
		LogsURL:      wr.GetLogsURL(),
	}
}

func remoteError(op string, resp *github.Response, err error) error {
	re := &RemoteError{Op: op, Err: err}
	if resp != nil {
		re.StatusCode = resp.StatusCode
	}

	var rle *github.RateLimitError
	var arle *github.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &arle) {
		re.RateLimited = true
	}
	return re
}
