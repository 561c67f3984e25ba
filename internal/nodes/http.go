package nodes

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/render"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPRequest выполняет HTTP-запрос.
//
// Входы url, headers и body могут содержать шаблоны над остальными входами:
//
//	url:     https://api.example.com/items/{{ .Inputs.id }}
//	headers: {"Authorization": "Bearer {{ .Inputs.token }}"}
//
// Выходы: status, headers, body (JSON или строка).
// Ответ с кодом >= 400 переводит автомат в error.
type HTTPRequest struct {
	machine *actor.Machine
	client  *http.Client
}

// NewHTTPRequest создаёт тип HTTPRequest. client == nil — клиент по умолчанию.
func NewHTTPRequest(client *http.Client) *HTTPRequest {
	return &HTTPRequest{
		machine: standardMachine(TypeHTTPRequest, false),
		client:  client,
	}
}

func (k *HTTPRequest) Type() string            { return TypeHTTPRequest }
func (k *HTTPRequest) Machine() *actor.Machine { return k.machine }

func (k *HTTPRequest) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs: map[string]*node.Input{
			domain.TriggerPort: triggerInput(),
			"url":              controlled(domain.SocketString, "URL", "text", ""),
			"method":           controlled(domain.SocketString, "Method", "select", http.MethodGet),
			"headers":          {Socket: domain.SocketObject, Label: "Headers"},
			"body":             {Socket: domain.SocketAny, Label: "Body"},
		},
		Outputs: map[string]*node.Output{
			domain.TriggerPort: triggerOutput(),
			"status":           {Socket: domain.SocketNumber, Label: "Status"},
			"headers":          {Socket: domain.SocketObject, Label: "Headers"},
			"body":             {Socket: domain.SocketAny, Label: "Body"},
		},
	}
}

func (k *HTTPRequest) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{serviceRun: k.do}
}

// httpConfig — разобранные входы запроса.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	Timeout         time.Duration
}

func (k *HTTPRequest) do(ctx context.Context, m actor.Memory) (map[string]any, error) {
	cfg, err := parseHTTPConfig(m.Inputs)
	if err != nil {
		return nil, err
	}

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrHTTPRequest, err)
	}

	resp, err := k.buildClient(cfg).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	outputs, raw, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &actor.MachineError{
			Name:    "HTTPError",
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(raw, 200)),
		}
	}
	return outputs, nil
}

// parseHTTPConfig рендерит шаблоны url, headers и body над входами.
func parseHTTPConfig(inputs map[string]any) (*httpConfig, error) {
	scope := render.NewScope(inputs)
	rendered, err := render.RenderConfig(map[string]any{
		"url":     inputs["url"],
		"headers": inputs["headers"],
		"body":    inputs["body"],
	}, scope)
	if err != nil {
		return nil, err
	}

	cfg := &httpConfig{
		Method:          strings.ToUpper(getString(inputs, "method")),
		URL:             getString(rendered, "url"),
		Headers:         getMapString(rendered, "headers"),
		Body:            rendered["body"],
		FollowRedirects: getBool(inputs, "follow_redirects", true),
		ValidateSSL:     getBool(inputs, "validate_ssl", true),
		Timeout:         defaultHTTPTimeout,
	}
	if sec, ok := getFloat(inputs, "timeout_sec"); ok && sec > 0 {
		cfg.Timeout = time.Duration(sec * float64(time.Second))
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return cfg, nil
}

// buildClient возвращает клиент с нужными настройками.
func (k *HTTPRequest) buildClient(cfg *httpConfig) *http.Client {
	if k.client != nil {
		return k.client
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.ValidateSSL},
		},
	}
}

func buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := cfg.Headers["Content-Type"]; !ok {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse читает ответ с ограничением размера.
func parseResponse(resp *http.Response) (map[string]any, string, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    body,
	}, string(bodyBytes), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
