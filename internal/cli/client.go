package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, клиент не зависит от internal/api) ---

// NodeTypeResponse — тип вершины из API.
type NodeTypeResponse struct {
	Type    string                    `json:"type"`
	Inputs  map[string]map[string]any `json:"inputs"`
	Outputs map[string]map[string]any `json:"outputs"`
}

// VertexResponse — вершина из API.
type VertexResponse struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	ContextID         string `json:"context_id"`
	WorkflowID        string `json:"workflow_id"`
	WorkflowVersionID string `json:"workflow_version_id"`
	Label             string `json:"label"`
}

// EdgeResponse — ребро из API.
type EdgeResponse struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceOutput string `json:"source_output"`
	Target       string `json:"target"`
	TargetInput  string `json:"target_input"`
}

// GraphResponse — граф версии из API.
type GraphResponse struct {
	VersionID string                     `json:"workflow_version_id"`
	Nodes     []VertexResponse           `json:"nodes"`
	Edges     []EdgeResponse             `json:"edges"`
	Contexts  map[string]json.RawMessage `json:"contexts"`
}

// ImportResponse — результат импорта.
type ImportResponse struct {
	WorkflowID        string `json:"workflow_id"`
	WorkflowVersionID string `json:"workflow_version_id"`
	Nodes             int    `json:"nodes"`
	Edges             int    `json:"edges"`
}

// ExecutionResponse — выполнение из API.
type ExecutionResponse struct {
	ID                string `json:"id"`
	WorkflowID        string `json:"workflow_id"`
	WorkflowVersionID string `json:"workflow_version_id"`
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
	StartedAt         string `json:"started_at,omitempty"`
	FinishedAt        string `json:"finished_at,omitempty"`
	DurationMs        int64  `json:"duration_ms,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// ExecutionNodeResponse — вершина выполнения из API.
type ExecutionNodeResponse struct {
	ID             string          `json:"id"`
	ExecutionID    string          `json:"execution_id"`
	WorkflowNodeID string          `json:"workflow_node_id"`
	State          json.RawMessage `json:"state,omitempty"`
	Complete       bool            `json:"complete"`
	TriggeredAt    string          `json:"triggered_at,omitempty"`
	UpdatedAt      string          `json:"updated_at"`
}

// ContextResponse — Context из API.
type ContextResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type,omitempty"`
	State     json.RawMessage `json:"state"`
	UpdatedAt string          `json:"updated_at"`
}

// ListExecutionsOpts — параметры фильтрации выполнений.
type ListExecutionsOpts struct {
	Version string
	Status  string
	Limit   int
	Offset  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		NodeID  string `json:"node_id"`
		Field   string `json:"field"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
	NodeID  string
	Field   string
}

func (e *APIError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	return msg
}

// --- Client ---

// Client — HTTP-клиент для API craftflow.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListNodeTypes возвращает зарегистрированные типы вершин.
func (c *Client) ListNodeTypes() ([]NodeTypeResponse, error) {
	var types []NodeTypeResponse
	err := c.list("/api/v1/node-types", nil, &types)
	return types, err
}

// ImportWorkflow отправляет описание workflow. contentType — application/yaml
// или text/vnd.graphviz.
func (c *Client) ImportWorkflow(data []byte, contentType string) (*ImportResponse, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/workflows/import", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ImportResponse
	if err := c.decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetGraph возвращает вершины и рёбра версии.
func (c *Client) GetGraph(versionID string) (*GraphResponse, error) {
	var g GraphResponse
	err := c.get("/api/v1/versions/"+url.PathEscape(versionID)+"/graph", &g)
	return &g, err
}

// GetGraphDOT возвращает граф версии в формате DOT.
func (c *Client) GetGraphDOT(versionID string) (string, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/versions/"+url.PathEscape(versionID)+"/graph?format=dot", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := c.checkError(resp); err != nil {
		return "", err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), nil
}

// --- Executions ---

// StartExecution запускает выполнение версии.
func (c *Client) StartExecution(versionID string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/versions/"+url.PathEscape(versionID)+"/executions", nil, &exec)
	return &exec, err
}

// ListExecutions возвращает выполнения с фильтрацией.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.Version != "" {
		params.Set("version", opts.Version)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var execs []ExecutionResponse
	err := c.list("/api/v1/executions", params, &execs)
	return execs, err
}

// GetExecution возвращает выполнение по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get("/api/v1/executions/"+url.PathEscape(id), &exec)
	return &exec, err
}

// ListExecutionNodes возвращает вершины выполнения.
func (c *Client) ListExecutionNodes(id string) ([]ExecutionNodeResponse, error) {
	var nodes []ExecutionNodeResponse
	err := c.list("/api/v1/executions/"+url.PathEscape(id)+"/nodes", nil, &nodes)
	return nodes, err
}

// TriggerStep повторно отправляет шаг вершине выполнения.
func (c *Client) TriggerStep(executionID, nodeID string) error {
	body := map[string]string{"workflow_node_id": nodeID}
	return c.post("/api/v1/executions/"+url.PathEscape(executionID)+"/steps", body, nil)
}

// --- Contexts ---

// GetContext возвращает Context по ID.
func (c *Client) GetContext(id string) (*ContextResponse, error) {
	var ctx ContextResponse
	err := c.get("/api/v1/contexts/"+url.PathEscape(id), &ctx)
	return &ctx, err
}

// SetContext перезаписывает состояние Context.
func (c *Client) SetContext(id string, state json.RawMessage) (*ContextResponse, error) {
	var ctx ContextResponse
	err := c.put("/api/v1/contexts/"+url.PathEscape(id), map[string]json.RawMessage{"state": state}, &ctx)
	return &ctx, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
		NodeID:  er.Error.NodeID,
		Field:   er.Error.Field,
	}
}

// IsNotFound сообщает, что API ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
