package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/medical-rag-assistant/internal/adapters/contract"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const ServerVersion = "1.0.0"

// Server exposes the medical query service as MCP tools over stdio.
type Server struct {
	mcp         *server.MCPServer
	service     ports.MedicalQueryService
	queries     *contract.QueryHandler
	initTimeout time.Duration
}

func NewServer(name string, service ports.MedicalQueryService, queries *contract.QueryHandler, initTimeout time.Duration) *Server {
	s := &Server{
		mcp:         server.NewMCPServer(name, ServerVersion, server.WithToolCapabilities(false)),
		service:     service,
		queries:     queries,
		initTimeout: initTimeout,
	}
	s.mcp.AddTool(queryTool(), s.handleQuery)
	s.mcp.AddTool(statusTool(), s.handleStatus)
	s.mcp.AddTool(initializeTool(), s.handleInitialize)
	return s
}

// Serve blocks until stdin closes or the process receives a termination signal.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("medical_query",
		mcp.WithDescription("Answer a medical question from the cardiology, dermatology and general corpora"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text medical question")),
		mcp.WithNumber("top_k", mcp.Description("Number of candidate answers retrieved from the index"), mcp.DefaultNumber(domain.DefaultTopK)),
		mcp.WithBoolean("use_hypothesis", mcp.Description("Search with a generated hypothetical answer instead of the raw question"), mcp.DefaultBool(domain.DefaultUseHypothesis)),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("medical_status",
		mcp.WithDescription("Report whether the indexes are built and how many documents each domain holds"),
	)
}

func initializeTool() mcp.Tool {
	return mcp.NewTool("medical_initialize",
		mcp.WithDescription("Load the corpora and build the domain indexes. A no-op once ready."),
	)
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", domain.DefaultTopK)
	useHypothesis := request.GetBool("use_hypothesis", domain.DefaultUseHypothesis)

	resp, err := s.queries.Execute(ctx, contract.QueryRequest{
		Query:         query,
		TopK:          &topK,
		UseHypothesis: &useHypothesis,
	})
	if err != nil {
		slog.Warn("mcp_query_failed", "code", resp.Code, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", resp.Code, err.Error())), nil
	}
	return textResult(resp)
}

func (s *Server) handleStatus(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(s.service.Status())
}

func (s *Server) handleInitialize(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = context.WithoutCancel(ctx)
	if s.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.initTimeout)
		defer cancel()
	}
	if err := s.service.Initialize(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", contract.ErrorCode(err), err.Error())), nil
	}
	return textResult(map[string]any{
		"message":     "medical rag service initialized",
		"initialized": true,
		"domains":     s.service.Status().Domains,
	})
}

func textResult(payload any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
