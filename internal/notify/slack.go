package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	slackColorDown = "#d50200"
	slackColorUp   = "#2eb886"
	slackMaxDetail = 300
)

// Slack posts alerts to an incoming webhook as one colored attachment per
// alert. A nil *Slack means alerts are disabled.
type Slack struct {
	webhook string
	client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{webhook: webhook, client: &http.Client{Timeout: 10 * time.Second}}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Fallback string       `json:"fallback"`
	Color    string       `json:"color"`
	Title    string       `json:"title"`
	Fields   []slackField `json:"fields"`
	Ts       int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackMessageFor(a Alert) slackMessage {
	ev := a.Event
	state, color := "DOWN", slackColorDown
	if a.Recovered {
		state, color = "RECOVERED", slackColorUp
	}
	headline := fmt.Sprintf("%s is %s", ev.Name, state)

	code := "n/a"
	if ev.Code != 0 {
		code = strconv.Itoa(ev.Code)
	}
	latency := "n/a"
	if ev.Success {
		latency = fmt.Sprintf("%d ms", ev.ResponseTimeUS/1000)
	}
	fields := []slackField{
		{Title: "Target", Value: ev.Target},
		{Title: "Kind", Value: ev.Kind, Short: true},
		{Title: "Code", Value: code, Short: true},
		{Title: "Latency", Value: latency, Short: true},
		{Title: "Service ID", Value: ev.ServiceID.String(), Short: true},
	}
	if ev.Message != "" {
		fields = append(fields, slackField{Title: "Detail", Value: clip(ev.Message, slackMaxDetail)})
	}
	return slackMessage{
		Text: headline,
		Attachments: []slackAttachment{{
			Fallback: headline + " (" + ev.Target + ")",
			Color:    color,
			Title:    headline,
			Fields:   fields,
			Ts:       ev.CheckedAt.Unix(),
		}},
	}
}

func (s *Slack) Send(ctx context.Context, a Alert) error {
	if s == nil {
		return errors.New("slack: no webhook configured")
	}
	body, err := json.Marshal(slackMessageFor(a))
	if err != nil {
		return fmt.Errorf("slack: encode alert for %s: %w", a.Event.ServiceID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post alert for %s: %w", a.Event.ServiceID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack: status %d: %s", resp.StatusCode, bytes.TrimSpace(reason))
	}
	return nil
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
