// Package mcp exposes playthroughs as Model Context Protocol tools so an agent
// can read a story and make choices in it.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/internal/logging"
	mermaid "github.com/aretw0/novella/internal/presentation/graph"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/aretw0/novella/pkg/runner"
	"github.com/aretw0/novella/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server keeps playthroughs in a session manager and drives them through the
// engine on behalf of MCP clients.
type Server struct {
	engine    ports.NarrativeEngine
	sessions  *session.Manager
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.NarrativeEngine, sessions *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		sessions:  sessions,
		logger:    logger,
		mcpServer: server.NewMCPServer("novella-mcp", novella.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down mcp server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartArgs are the arguments of the start_playthrough tool.
type StartArgs struct {
	StoryID       string `json:"story_id"`
	Version       string `json:"version,omitempty"`
	PlaythroughID string `json:"playthrough_id,omitempty"`
	Seed          *int64 `json:"seed,omitempty"`
}

// ResumeArgs are the arguments of the resume tool.
type ResumeArgs struct {
	PlaythroughID string `json:"playthrough_id"`
	OptionID      string `json:"option_id,omitempty"`
}

// ChoicesArgs are the arguments of the describe_choices tool.
type ChoicesArgs struct {
	PlaythroughID string `json:"playthrough_id"`
	NodeID        string `json:"node_id,omitempty"`
}

// ChoicesResult lists the options an agent may pick right now.
type ChoicesResult struct {
	NodeID  string                 `json:"node_id" jsonschema_description:"The choice node described"`
	Options []domain.VisibleOption `json:"options" jsonschema_description:"Options that can be selected"`
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_stories",
		mcp.WithDescription("List the published stories and their versions."),
	), s.handleListStories)

	s.mcpServer.AddTool(mcp.NewTool("start_playthrough",
		mcp.WithDescription("Start a new playthrough of a story. Returns the first scene or choice."),
		mcp.WithString("story_id", mcp.Required(), mcp.Description("Story to play")),
		mcp.WithString("version", mcp.Description("Story version, latest when omitted")),
		mcp.WithString("playthrough_id", mcp.Description("Id for the new playthrough, generated when omitted")),
		mcp.WithNumber("seed", mcp.Description("Random seed for chance conditions")),
		mcp.WithOutputSchema[runner.Step](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("resume",
		mcp.WithDescription("Advance a playthrough. Omit option_id to continue past a scene; pass an option id to answer a choice."),
		mcp.WithString("playthrough_id", mcp.Required(), mcp.Description("Playthrough to advance")),
		mcp.WithString("option_id", mcp.Description("Selected option id")),
		mcp.WithOutputSchema[runner.Step](),
	), mcp.NewStructuredToolHandler(s.handleResume))

	s.mcpServer.AddTool(mcp.NewTool("describe_choices",
		mcp.WithDescription("List the options that can be selected at a choice node without changing the playthrough."),
		mcp.WithString("playthrough_id", mcp.Required(), mcp.Description("Playthrough to inspect")),
		mcp.WithString("node_id", mcp.Description("Choice node, the current node when omitted")),
		mcp.WithOutputSchema[ChoicesResult](),
	), mcp.NewStructuredToolHandler(s.handleDescribeChoices))

	s.mcpServer.AddTool(mcp.NewTool("render_graph",
		mcp.WithDescription("Render a story as a Mermaid flowchart, optionally marking the nodes a playthrough visited."),
		mcp.WithString("story_id", mcp.Required(), mcp.Description("Story to render")),
		mcp.WithString("version", mcp.Description("Story version, latest when omitted")),
		mcp.WithString("playthrough_id", mcp.Description("Playthrough whose path is highlighted")),
	), s.handleRenderGraph)
}

func (s *Server) handleListStories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(s.stories())
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

type storyEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

func (s *Server) stories() []storyEntry {
	out := []storyEntry{}
	for _, id := range s.engine.Stories() {
		store, err := s.engine.Inspect(id, "")
		if err != nil {
			continue
		}
		out = append(out, storyEntry{ID: id, Title: store.Title(), Version: store.Version()})
	}
	return out
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args StartArgs) (*runner.Step, error) {
	if args.StoryID == "" {
		return nil, errors.New("story_id is required")
	}
	step, err := runner.Start(ctx, s.engine, args.StoryID, ports.StartOptions{
		PlaythroughID: args.PlaythroughID,
		Version:       args.Version,
		Seed:          args.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("start failed: %w", err)
	}
	if err := s.sessions.Create(ctx, step.State); err != nil {
		return nil, err
	}
	s.logger.Info("mcp playthrough started", "playthrough", step.State.PlaythroughID, "story", args.StoryID)
	return step, nil
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest, args ResumeArgs) (*runner.Step, error) {
	optionID, err := runner.SanitizeInput(args.OptionID)
	if err != nil {
		s.logger.Warn("mcp resume: input rejected", "err", err, "size", len(args.OptionID))
		return nil, fmt.Errorf("input rejected: %w", err)
	}
	var step *runner.Step
	_, err = s.sessions.Update(ctx, args.PlaythroughID,
		func(ctx context.Context, state *domain.GameState) (*domain.GameState, error) {
			next, err := runner.Advance(ctx, s.engine, state, optionID)
			if err != nil {
				return nil, err
			}
			step = next
			return next.State, nil
		})
	if err != nil {
		return nil, fmt.Errorf("resume failed: %w", err)
	}
	return step, nil
}

func (s *Server) handleDescribeChoices(ctx context.Context, request mcp.CallToolRequest, args ChoicesArgs) (ChoicesResult, error) {
	state, err := s.sessions.Load(ctx, args.PlaythroughID)
	if err != nil {
		return ChoicesResult{}, err
	}
	nodeID := args.NodeID
	if nodeID == "" {
		nodeID = state.CurrentNodeID
	}
	options, err := s.engine.DescribeChoices(state, nodeID)
	if err != nil {
		return ChoicesResult{}, err
	}
	if options == nil {
		options = []domain.VisibleOption{}
	}
	return ChoicesResult{NodeID: nodeID, Options: options}, nil
}

func (s *Server) handleRenderGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storyID, err := request.RequireString("story_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version := request.GetString("version", "")

	var overlay *mermaid.GraphOverlay
	if id := request.GetString("playthrough_id", ""); id != "" {
		state, err := s.sessions.Load(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load playthrough: %v", err)), nil
		}
		overlay = mermaid.OverlayFromState(state)
		if version == "" {
			version = state.GraphVersion
		}
	}
	store, err := s.engine.Inspect(storyID, version)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	return mcp.NewToolResultText(mermaid.GenerateMermaid(store.Document(), overlay)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("novella://stories", "Published stories",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		payload, err := json.Marshal(s.stories())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "novella://stories",
				MIMEType: "application/json",
				Text:     string(payload),
			},
		}, nil
	})
}
