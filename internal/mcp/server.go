// Package mcp exposes the coordinator over the Model Context Protocol via
// stdio. Every coordinator failure comes back as structured result data with
// its error kind intact; transport-level errors are reserved for malformed
// requests.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"crucible/internal/logging"
	"crucible/internal/orchestrate"
	"crucible/internal/pipeline"
	"crucible/internal/registry"
)

// Server wraps the MCP SDK server around a coordinator.
type Server struct {
	MCPServer *sdkmcp.Server
	coord     *orchestrate.Coordinator
}

// NewServer creates the MCP server and registers the pipeline tools.
func NewServer(coord *orchestrate.Coordinator) *Server {
	s := &Server{coord: coord}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "crucible", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_session",
		Description: "Mint a fresh pipeline session key. Sessions start at the empty stage.",
	}, s.handleStartSession)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "invoke_tool",
		Description: "Invoke a registered pipeline tool against a session. Failures are returned as structured results with a machine-readable error kind.",
	}, s.handleInvokeTool)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_tools",
		Description: "List the registered pipeline tools with their parameter schemas and stage requirements.",
	}, s.handleListTools)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "pipeline_status",
		Description: "Report a session's current stage, slots, and transition history.",
	}, s.handlePipelineStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "reset_pipeline",
		Description: "Reset a session back to the empty stage. Idempotent.",
	}, s.handleResetPipeline)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "reset_worker",
		Description: "Return a failed worker kind to ready so it can be acquired again.",
	}, s.handleResetWorker)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "worker_status",
		Description: "Report the per-kind status of the worker pool.",
	}, s.handleWorkerStatus)
}

// --- Tool input/output types ---

type startSessionOutput struct {
	SessionKey string `json:"session_key"`
	Stage      string `json:"stage"`
}

type invokeToolInput struct {
	SessionKey string `json:"session_key" jsonschema:"session key from start_session"`
	Tool       string `json:"tool" jsonschema:"registered tool name"`
	ParamsJSON string `json:"params_json,omitempty" jsonschema:"tool parameters as a JSON object string"`
}

type invokeToolOutput struct {
	Status     string         `json:"status"`
	Stage      string         `json:"stage"`
	Payload    map[string]any `json:"payload,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	Violations []string       `json:"violations,omitempty"`
}

type toolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Worker      string      `json:"worker,omitempty"`
	Requires    string      `json:"requires,omitempty"`
	Params      []paramInfo `json:"params,omitempty"`
}

type paramInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

type listToolsOutput struct {
	Tools []toolInfo `json:"tools"`
}

type pipelineStatusInput struct {
	SessionKey string `json:"session_key" jsonschema:"session key from start_session"`
}

type transitionInfo struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Tool      string `json:"tool"`
	Timestamp string `json:"timestamp"`
}

type pipelineStatusOutput struct {
	SessionKey string           `json:"session_key"`
	Stage      string           `json:"stage"`
	Slots      map[string]any   `json:"slots,omitempty"`
	History    []transitionInfo `json:"history,omitempty"`
	UpdatedAt  string           `json:"updated_at"`
}

type resetPipelineInput struct {
	SessionKey string `json:"session_key" jsonschema:"session key to reset"`
}

type resetPipelineOutput struct {
	OK    string `json:"ok"`
	Stage string `json:"stage"`
}

type resetWorkerInput struct {
	Kind string `json:"kind" jsonschema:"worker kind (analysis, conversion, evaluation, enrichment)"`
}

type resetWorkerOutput struct {
	OK string `json:"ok"`
}

type workerStatusOutput struct {
	Workers map[string]string `json:"workers"`
}

// --- Tool handlers ---

func (s *Server) handleStartSession(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, startSessionOutput, error) {
	key := uuid.NewString()
	// Materialize the session so status calls before the first invocation
	// see it.
	state, err := s.coord.State(key)
	if err != nil {
		return nil, startSessionOutput{}, fmt.Errorf("start_session: %w", err)
	}
	logging.New("mcp").Info("session started", "session", key)
	return nil, startSessionOutput{SessionKey: key, Stage: string(state.Stage)}, nil
}

func (s *Server) handleInvokeTool(ctx context.Context, _ *sdkmcp.CallToolRequest, input invokeToolInput) (*sdkmcp.CallToolResult, invokeToolOutput, error) {
	if input.SessionKey == "" {
		return nil, invokeToolOutput{}, fmt.Errorf("session_key is required")
	}
	if input.Tool == "" {
		return nil, invokeToolOutput{}, fmt.Errorf("tool is required")
	}

	var params map[string]any
	if input.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(input.ParamsJSON), &params); err != nil {
			return nil, invokeToolOutput{}, fmt.Errorf("params_json is not a JSON object: %w", err)
		}
	}

	res := s.coord.Invoke(ctx, input.SessionKey, input.Tool, params)
	return nil, invokeToolOutput{
		Status:     string(res.Status),
		Stage:      string(res.Stage),
		Payload:    res.Payload,
		ErrorKind:  string(res.ErrorKind),
		Message:    res.Message,
		Violations: res.Violations,
	}, nil
}

func (s *Server) handleListTools(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, listToolsOutput, error) {
	descriptors := s.coord.ListTools()
	out := listToolsOutput{Tools: make([]toolInfo, 0, len(descriptors))}
	for _, d := range descriptors {
		out.Tools = append(out.Tools, describeTool(d))
	}
	return nil, out, nil
}

func (s *Server) handlePipelineStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input pipelineStatusInput) (*sdkmcp.CallToolResult, pipelineStatusOutput, error) {
	if input.SessionKey == "" {
		return nil, pipelineStatusOutput{}, fmt.Errorf("session_key is required")
	}
	state, err := s.coord.State(input.SessionKey)
	if err != nil {
		return nil, pipelineStatusOutput{}, fmt.Errorf("pipeline_status: %w", err)
	}

	out := pipelineStatusOutput{
		SessionKey: state.Key,
		Stage:      string(state.Stage),
		Slots:      state.Slots,
		UpdatedAt:  state.UpdatedAt,
	}
	for _, tr := range state.History {
		out.History = append(out.History, transitionInfo{
			From:      string(tr.From),
			To:        string(tr.To),
			Tool:      tr.Tool,
			Timestamp: tr.Timestamp,
		})
	}
	return nil, out, nil
}

func (s *Server) handleResetPipeline(_ context.Context, _ *sdkmcp.CallToolRequest, input resetPipelineInput) (*sdkmcp.CallToolResult, resetPipelineOutput, error) {
	if input.SessionKey == "" {
		return nil, resetPipelineOutput{}, fmt.Errorf("session_key is required")
	}
	if err := s.coord.Reset(input.SessionKey); err != nil {
		return nil, resetPipelineOutput{}, fmt.Errorf("reset_pipeline: %w", err)
	}
	return nil, resetPipelineOutput{OK: "session reset", Stage: string(pipeline.StageEmpty)}, nil
}

func (s *Server) handleResetWorker(_ context.Context, _ *sdkmcp.CallToolRequest, input resetWorkerInput) (*sdkmcp.CallToolResult, resetWorkerOutput, error) {
	kind, err := pipeline.ParseKind(input.Kind)
	if err != nil {
		return nil, resetWorkerOutput{}, err
	}
	if err := s.coord.ResetWorker(kind); err != nil {
		return nil, resetWorkerOutput{}, fmt.Errorf("reset_worker: %w", err)
	}
	return nil, resetWorkerOutput{OK: fmt.Sprintf("worker %s reset", kind)}, nil
}

func (s *Server) handleWorkerStatus(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, workerStatusOutput, error) {
	statuses := s.coord.WorkerStatuses()
	out := workerStatusOutput{Workers: make(map[string]string, len(statuses))}
	for kind, st := range statuses {
		out.Workers[string(kind)] = string(st)
	}
	return nil, out, nil
}

func describeTool(d *registry.Descriptor) toolInfo {
	info := toolInfo{
		Name:        d.Name,
		Description: d.Description,
		Worker:      string(d.Worker),
		Requires:    string(d.Requires),
	}
	for _, p := range d.Params {
		info.Params = append(info.Params, paramInfo{
			Name:        p.Name,
			Type:        string(p.Type),
			Required:    p.Required,
			Default:     p.Default,
			Description: p.Description,
		})
	}
	return info
}
