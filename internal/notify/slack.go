package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"netrunner/internal/security"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4096
)

// Notifier delivers reports. Implementations must not mutate the views.
type Notifier interface {
	NotifyDeployment(ctx context.Context, v DeploymentView) error
	NotifyComparison(ctx context.Context, v ComparisonView) error
}

// ErrNoWebhook is returned when no Slack webhook is configured.
var ErrNoWebhook = errors.New("no Slack webhook configured (set NETRUNNER_SLACK_WEBHOOK_URL)")

// SlackNotifier posts reports to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier creates a notifier for webhookURL. A nil client gets a
// default with a timeout.
func NewSlackNotifier(webhookURL string, client *http.Client, logger *slog.Logger) (*SlackNotifier, error) {
	trimmed := strings.TrimSpace(webhookURL)
	if trimmed == "" {
		return nil, ErrNoWebhook
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{webhookURL: trimmed, client: client, logger: logger}, nil
}

// NotifyDeployment posts the deployment report.
func (s *SlackNotifier) NotifyDeployment(ctx context.Context, v DeploymentView) error {
	if err := s.post(ctx, DeploymentReport(v)); err != nil {
		return fmt.Errorf("post deployment %d: %w", v.ID, err)
	}
	s.logger.Info("Posted deployment report", "deployment_id", v.ID, "name", v.Name, "repost", v.Repost)
	return nil
}

// NotifyComparison posts the comparison report followed by the smoke-test
// report as a second message.
func (s *SlackNotifier) NotifyComparison(ctx context.Context, v ComparisonView) error {
	if err := s.post(ctx, ComparisonReport(v)); err != nil {
		return fmt.Errorf("post comparison %d: %w", v.ID, err)
	}
	if err := s.post(ctx, ComparisonSmokeTestReport(v)); err != nil {
		return fmt.Errorf("post comparison %d smoke tests: %w", v.ID, err)
	}
	s.logger.Info("Posted comparison report", "comparison_id", v.ID, "label", v.Label)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error carries the webhook URL, which is a credential.
		return errors.New("send slack request: " + security.Redact(err.Error(), s.webhookURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		summary := strings.TrimSpace(string(buf))
		if summary == "" {
			summary = resp.Status
		}
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, summary)
	}
	return nil
}
