package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openclaw/opsd/pkg/models"
)

// Notifier delivers pipeline notifications to a channel.
type Notifier interface {
	Notify(notification models.Notification) error
}

// NotificationSink persists notifications. Satisfied by the storage layer.
type NotificationSink interface {
	Add(notification models.Notification) (*models.Notification, error)
}

// storeNotifier appends notifications to the workspace notification store.
type storeNotifier struct {
	sink NotificationSink
}

// NewStoreNotifier creates a Notifier that persists notifications to the given sink.
func NewStoreNotifier(sink NotificationSink) Notifier {
	return &storeNotifier{sink: sink}
}

func (n *storeNotifier) Notify(notification models.Notification) error {
	if _, err := n.sink.Add(notification); err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}
	return nil
}

// slackNotifier sends notifications to a Slack webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts to the given Slack webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts the notification to the configured Slack webhook.
func (s *slackNotifier) Notify(notification models.Notification) error {
	msg := s.buildMessage(notification)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *slackNotifier) buildMessage(notification models.Notification) slackMessage {
	emoji := typeEmoji(notification.Type)
	text := fmt.Sprintf("%s *[%s]* %s",
		emoji,
		strings.ToUpper(string(notification.Type)),
		notification.Title,
	)
	if notification.Description != "" {
		text += "\n" + notification.Description
	}

	return slackMessage{Blocks: []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "opsd Notification"},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		},
	}}
}

func typeEmoji(t models.NotificationType) string {
	switch t {
	case models.NotifyError:
		return "\U0001f534"
	case models.NotifyWarning:
		return "\U0001f7e1"
	case models.NotifyInfo:
		return "\U0001f535"
	default:
		return "❓"
	}
}

// multiNotifier fans out to several notifiers, returning the first error.
type multiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a Notifier that delivers to all given notifiers.
func NewMultiNotifier(notifiers ...Notifier) Notifier {
	return &multiNotifier{notifiers: notifiers}
}

func (m *multiNotifier) Notify(notification models.Notification) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(notification); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
