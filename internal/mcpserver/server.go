// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the note tools to LLM agents over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/tools"
)

// formatURI is the resource holding the note format description.
const formatURI = "mimir://note-format"

// Server wraps the MCP server with the note tools.
type Server struct {
	mcp   *server.MCPServer
	tools *tools.Facade
}

// New creates a new MCP server with all tools registered.
func New(facade *tools.Facade, version string) *Server {
	s := &Server{tools: facade}

	s.mcp = server.NewMCPServer(
		"Mimir",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by id (the slug of its title) or by its vault path (e.g. my-note.md)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id or mirror path")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("write_note",
		mcp.WithDescription("Create a note, or update it when id is given. "+
			"Reference other notes with [[Title]]. See the "+formatURI+" resource."),
		mcp.WithString("id", mcp.Description("Id of the note to update; omit to create")),
		mcp.WithString("title", mcp.Description("Title; required when creating")),
		mcp.WithString("content", mcp.Description("Note body")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags; replaces existing tags on update")),
	), s.writeNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Ranked full-text search over note titles and content. Supports phrases and prefix* terms."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Keep notes carrying any of these tags")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("query_graph",
		mcp.WithDescription("List the links of a note: outgoing references or incoming backlinks."),
		mcp.WithString("id", mcp.Description("Note id")),
		mcp.WithString("direction", mcp.Enum("outgoing", "incoming", "both"), mcp.Description("Edge direction (default outgoing)")),
		mcp.WithNumber("limit", mcp.Description("Max edges (default 100)")),
	), s.queryGraph)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format",
			mcp.WithResourceDescription("How notes are linked and mirrored in the vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.tools.ReadNote(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(note)
}

func (s *Server) writeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	wr := tools.WriteRequest{ID: req.GetString("id", "")}
	if _, ok := args["title"]; ok {
		title := req.GetString("title", "")
		wr.Title = &title
	}
	if _, ok := args["content"]; ok {
		content := req.GetString("content", "")
		wr.Content = &content
	}
	if _, ok := args["tags"]; ok {
		tags := req.GetStringSlice("tags", nil)
		wr.Tags = &tags
	}

	note, err := s.tools.WriteNote(ctx, wr)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(note)
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.tools.SearchNotes(ctx, query, req.GetStringSlice("tags", nil), req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(hits)
}

func (s *Server) queryGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.tools.QueryGraph(ctx,
		req.GetString("id", ""),
		models.Direction(req.GetString("direction", "")),
		req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormat,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError reports store failures as tool errors with a stable prefix.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrDuplicateNote):
		return mcp.NewToolResultError("already exists: " + err.Error())
	case errors.Is(err, apperr.ErrInvalid):
		return mcp.NewToolResultError("invalid: " + err.Error())
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
