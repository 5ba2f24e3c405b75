// Package sink delivers notices about events the relay gave up on.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"
)

const defaultTemplate = "DROPPED {{.Pipeline}} {{.TxHash}} after {{.Attempts}} attempt(s): {{.Error}}"

// Notice describes an event the relay gave up on.
type Notice struct {
	Pipeline    string         `json:"pipeline"`
	Destination string         `json:"destination"`
	Reason      string         `json:"reason"`
	TxHash      string         `json:"tx_hash"`
	Block       uint64         `json:"block"`
	Attempts    int            `json:"attempts"`
	Error       string         `json:"error,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, notice Notice) error
}

// encodeFunc turns a notice into a request body.
type encodeFunc func(n Notice) ([]byte, error)

type httpSender struct {
	url     string
	method  string
	encode  encodeFunc
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sink. With a template the rendered text is
// the request body; without one the notice is posted as JSON.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	enc := encodeFunc(func(n Notice) ([]byte, error) { return json.Marshal(n) })
	if tmpl != "" {
		t, err := parseTemplate(tmpl)
		if err != nil {
			return nil, err
		}
		enc = func(n Notice) ([]byte, error) {
			s, err := executeTemplate(t, n)
			return []byte(s), err
		}
	}
	if method == "" {
		method = http.MethodPost
	}
	return newHTTPSender(url, strings.ToUpper(method), enc, headers)
}

// NewSlackSender posts {"text": ...} to a Slack incoming webhook.
func NewSlackSender(url, tmpl string) (Sender, error) {
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return newHTTPSender(url, http.MethodPost, func(n Notice) ([]byte, error) {
		text, err := executeTemplate(t, n)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"text": text})
	}, jsonHeaders())
}

// NewTeamsSender posts a MessageCard to a Teams incoming webhook.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return newHTTPSender(url, http.MethodPost, func(n Notice) ([]byte, error) {
		text, err := executeTemplate(t, n)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{
			"@type":      "MessageCard",
			"@context":   "https://schema.org/extensions",
			"summary":    fmt.Sprintf("%s dropped %s", n.Pipeline, n.TxHash),
			"themeColor": "D70000",
			"text":       text,
		})
	}, jsonHeaders())
}

// New builds a sender from its configured kind: slack, teams or webhook.
func New(kind, url, method, tmpl string) (Sender, error) {
	switch strings.ToLower(kind) {
	case "slack":
		return NewSlackSender(url, tmpl)
	case "teams":
		return NewTeamsSender(url, tmpl)
	case "webhook":
		return NewWebhookSender(url, method, tmpl, jsonHeaders())
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", kind)
	}
}

func newHTTPSender(url, method string, enc encodeFunc, headers map[string]string) (*httpSender, error) {
	if url == "" {
		return nil, fmt.Errorf("sink url required")
	}
	return &httpSender{
		url:     url,
		method:  method,
		encode:  enc,
		client:  &http.Client{Timeout: 8 * time.Second},
		headers: headers,
	}, nil
}

func (s *httpSender) Send(ctx context.Context, notice Notice) error {
	body, err := s.encode(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return nil
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_hash": func(h string) string {
			if len(h) <= 10 {
				return h
			}
			return h[:6] + "..." + h[len(h)-4:]
		},
	}
	t, err := template.New("notice").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

func executeTemplate(t *template.Template, n Notice) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
