package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
)

const (
	Version = "1.0.0"

	ToolAsk             = "ask_lecture_assistant"
	ToolIngestionStatus = "ingestion_status"
)

// Server exposes the answer operation, and ingestion status when tracking is enabled, as MCP tools.
type Server struct {
	query ports.QueryService
	runs  ports.IngestionReader
	mcp   *server.MCPServer
}

func NewServer(query ports.QueryService, runs ports.IngestionReader) (*Server, error) {
	if query == nil {
		return nil, errors.New("query service is required")
	}
	s := &Server{
		query: query,
		runs:  runs,
		mcp:   server.NewMCPServer("lecture-assistant", Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question using the ingested lecture materials."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The student's question."),
		),
		mcp.WithArray("history",
			mcp.Description("Earlier conversation turns, oldest first."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role": map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
					"text": map[string]any{"type": "string"},
				},
				"required": []string{"role", "text"},
			}),
		),
	), s.handleAsk)

	if s.runs != nil {
		s.mcp.AddTool(mcp.NewTool(ToolIngestionStatus,
			mcp.WithDescription("Report the latest ingestion run of a lecture document."),
			mcp.WithString("document_id",
				mcp.Required(),
				mcp.Description("Document id, the object key without extension."),
			),
		), s.handleIngestionStatus)
	}
}

// Serve runs the server over stdio until ctx is done or the input closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type askOutput struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources,omitempty"`
	Grounded bool     `json:"grounded"`
	Fallback bool     `json:"fallback"`
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	history, err := parseHistory(request.GetArguments()["history"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := s.query.Answer(ctx, question, history)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		slog.Error("mcp_tool_failed", "tool", ToolAsk, "error", err)
		return nil, err
	}

	out := askOutput{
		Answer:   answer.Text,
		Grounded: answer.Grounded,
		Fallback: answer.Fallback,
	}
	seen := make(map[string]struct{}, len(answer.Sources))
	for _, src := range answer.Sources {
		if _, ok := seen[src.SourceDocumentID]; ok {
			continue
		}
		seen[src.SourceDocumentID] = struct{}{}
		out.Sources = append(out.Sources, src.SourceDocumentID)
	}
	return jsonResult(out)
}

func (s *Server) handleIngestionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.runs.GetRun(ctx, strings.TrimSpace(id))
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no ingestion run for %q", id)), nil
		}
		return nil, err
	}
	return jsonResult(run)
}

func parseHistory(raw any) (domain.ConversationHistory, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("history must be an array")
	}
	history := make(domain.ConversationHistory, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("history[%d] must be an object", i)
		}
		roleRaw, _ := obj["role"].(string)
		role, err := domain.ParseRole(roleRaw)
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		text, _ := obj["text"].(string)
		history = append(history, domain.ConversationTurn{Role: role, Text: text})
	}
	return history, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
