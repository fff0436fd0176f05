package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/veritrail/veritrail/internal/audit"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager posts audit notifications to a Slack-compatible webhook. A
// disabled manager is a no-op, and callers treat every send as best-effort.
type Manager struct {
	enabled    bool
	webhookURL string
	httpClient HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, webhookURL string) *Manager {
	return &Manager{
		enabled:    enabled,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func NewManagerWithClient(enabled bool, webhookURL string, client HTTPClient) *Manager {
	return &Manager{
		enabled:    enabled,
		webhookURL: webhookURL,
		httpClient: client,
	}
}

// Emit implements audit.Sink by posting a notification for the entry.
func (m *Manager) Emit(entry *audit.Entry) error {
	if !m.enabled || m.webhookURL == "" {
		return nil
	}

	msg := slackMessage{
		Text: "Audit event recorded",
		Attachments: []slackAttachment{
			{
				Color: "good",
				Title: string(entry.EventType),
				Fields: []slackField{
					{Title: "Node", Value: entry.NodeID, Short: true},
					{Title: "Actor", Value: entry.Actor, Short: true},
					{Title: "Details", Value: entry.Details, Short: false},
					{Title: "Hash", Value: entry.Hash, Short: false},
				},
				Footer: "Veritrail Audit Trail",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) SendChainBrokenAlert(nodeID string, position int, expectedHash, actualHash string) error {
	if !m.enabled || m.webhookURL == "" {
		return nil
	}

	msg := slackMessage{
		Text: "🚨 *AUDIT CHAIN INTEGRITY VIOLATION*",
		Attachments: []slackAttachment{
			{
				Color: "danger",
				Title: "Audit Chain Broken",
				Fields: []slackField{
					{Title: "Node", Value: nodeID, Short: true},
					{Title: "Position", Value: fmt.Sprintf("%d", position), Short: true},
					{Title: "Expected Hash", Value: expectedHash, Short: false},
					{Title: "Actual Hash", Value: actualHash, Short: false},
				},
				Footer: "Veritrail Audit Trail",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) SendSystemAlert(title, message, severity string) error {
	if !m.enabled || m.webhookURL == "" {
		return nil
	}

	color := "danger"
	if severity == "warning" {
		color = "warning"
	} else if severity == "good" {
		color = "good"
	}

	msg := slackMessage{
		Text: fmt.Sprintf("🚨 *SYSTEM ALERT: %s*", title),
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: title,
				Fields: []slackField{
					{Title: "Message", Value: message, Short: false},
				},
				Footer: "Veritrail System Monitor",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) sendSlackMessage(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
