// Package notify renders deployment and comparison reports and delivers
// them to chat.
package notify

import (
	"fmt"
	"time"

	"netrunner/internal/history"
	"netrunner/internal/smoketest"
)

// DeploymentView is the read-only projection of a deployment that reports
// are built from.
type DeploymentView struct {
	ID               int64
	Name             string
	NetworkID        int
	EnvironmentType  string
	Workflow         string
	Ref              string
	RunID            int64
	RunURL           string
	CreatedAt        time.Time
	RelatedPR        *int
	Description      string
	Inputs           map[string]string
	Status           string
	Conclusion       string
	SmokeTest        smoketest.Result
	SmokeTestAnswers []smoketest.QuestionAnswer
	Destroyed        bool
	Repost           bool
}

// NewDeploymentView projects d. Smoke-test answers are ordered by the
// default questionnaire.
func NewDeploymentView(d *history.Deployment, repost bool) DeploymentView {
	v := DeploymentView{
		ID:              d.ID,
		Name:            d.Name,
		NetworkID:       d.NetworkID,
		EnvironmentType: d.EnvironmentType,
		Workflow:        d.Workflow,
		Ref:             d.Ref,
		RunID:           d.RunID,
		RunURL:          d.RunURL,
		CreatedAt:       d.CreatedAt,
		RelatedPR:       d.RelatedPR,
		Inputs:          d.Inputs,
		Status:          d.RunStatus,
		Conclusion:      d.Conclusion(),
		SmokeTest:       d.SmokeTest,
		Destroyed:       !d.Active(),
		Repost:          repost,
	}
	if d.Description != nil {
		v.Description = *d.Description
	}
	if len(d.SmokeTestAnswers) > 0 {
		v.SmokeTestAnswers = d.SmokeTestAnswers.Ordered(smoketest.DefaultQuestions)
	}
	return v
}

// MemberView is one labelled deployment in a comparison.
type MemberView struct {
	Label      string
	Deployment DeploymentView
}

// ComparisonView is the read-only projection of a comparison.
type ComparisonView struct {
	ID          int64
	Label       string
	Description string
	ThreadLink  string
	Ref         MemberView
	Tests       []MemberView
	Repost      bool
}

// NewComparisonView projects c. Every member must have its deployment
// resolved.
func NewComparisonView(c *history.Comparison) (ComparisonView, error) {
	if len(c.Members) < 2 {
		return ComparisonView{}, fmt.Errorf("comparison %d has %d members", c.ID, len(c.Members))
	}

	v := ComparisonView{ID: c.ID, Label: c.Label}
	if c.Description != nil {
		v.Description = *c.Description
	}
	if c.ThreadLink != nil {
		v.ThreadLink = *c.ThreadLink
	}
	v.Repost = len(c.Reports) > 0

	for i, m := range c.Members {
		if m.Deployment == nil {
			return ComparisonView{}, fmt.Errorf("comparison %d: deployment %d not loaded", c.ID, m.DeploymentID)
		}
		mv := MemberView{Label: m.Label, Deployment: NewDeploymentView(m.Deployment, false)}
		if mv.Label == "" {
			mv.Label = m.Deployment.Name
		}
		if i == 0 {
			v.Ref = mv
		} else {
			v.Tests = append(v.Tests, mv)
		}
	}
	return v, nil
}
