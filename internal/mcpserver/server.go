// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes hub maintenance tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/lifecycle"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/settings"
)

const conventionsURI = "mocsync://hub-conventions"

// Operations is the hub lifecycle exposed as tools.
type Operations interface {
	Hubs(ctx context.Context) ([]models.HubInfo, error)
	Update(ctx context.Context, hub string) (lifecycle.Report, error)
	UpdateAll(ctx context.Context) ([]lifecycle.Report, error)
	CreateHub(ctx context.Context, dir, name string) (string, error)
	ConvertToHub(ctx context.Context, doc string) (string, error)
	RenameHub(ctx context.Context, hub, newName string) (string, error)
	DeleteHub(ctx context.Context, hub, confirmation string) error
	CreateItem(ctx context.Context, hub, name string) (string, error)
	RenameItem(ctx context.Context, hub, oldName, newName string) (string, error)
	DeleteItem(ctx context.Context, hub, name, confirmation string) error
	MoveItem(ctx context.Context, item, targetHub string) (string, error)
}

// SettingsStore reads and replaces the runtime settings.
type SettingsStore interface {
	Get() settings.Settings
	Update(next settings.Settings) error
}

// Server wraps the MCP server with the hub tools.
type Server struct {
	mcp      *server.MCPServer
	ops      Operations
	settings SettingsStore
}

// New creates a new MCP server with all hub tools registered.
func New(ops Operations, st SettingsStore, version string) *Server {
	s := &Server{ops: ops, settings: st}

	s.mcp = server.NewMCPServer(
		"mocsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_hubs",
		mcp.WithDescription("List hubs with their item names and maintenance state."),
	), s.listHubs)

	s.mcp.AddTool(mcp.NewTool("update_hubs",
		mcp.WithDescription("Repair the folder structure of a hub and reconcile its item links. "+
			"Without a path every hub is updated."),
		mcp.WithString("path", mcp.Description("Hub document path (e.g. Work/Work.md); empty for all hubs")),
	), s.updateHubs)

	s.mcp.AddTool(mcp.NewTool("create_hub",
		mcp.WithDescription("Create a hub folder and hub document. Read the conventions first via "+
			"the get_hub_conventions tool or the "+conventionsURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Hub name, also the folder name")),
		mcp.WithString("dir", mcp.Description("Parent folder (empty for the vault root)")),
	), s.createHub)

	s.mcp.AddTool(mcp.NewTool("convert_to_hub",
		mcp.WithDescription("Turn an existing empty document into a hub."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the empty document")),
	), s.convertToHub)

	s.mcp.AddTool(mcp.NewTool("rename_hub",
		mcp.WithDescription("Rename a hub document together with its folder."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Hub document path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New hub name")),
	), s.renameHub)

	s.mcp.AddTool(mcp.NewTool("delete_hub",
		mcp.WithDescription("Move a hub and everything in its folder to the trash."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Hub document path")),
		mcp.WithString("confirmation", mcp.Required(), mcp.Description("The configured confirmation phrase")),
	), s.deleteHub)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create an item folder with its entry document under a hub and link it."),
		mcp.WithString("hub", mcp.Required(), mcp.Description("Hub document path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Item name")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("rename_item",
		mcp.WithDescription("Rename an item folder and entry document, rewriting the hub link."),
		mcp.WithString("hub", mcp.Required(), mcp.Description("Hub document path")),
		mcp.WithString("old_name", mcp.Required(), mcp.Description("Current item name")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New item name")),
	), s.renameItem)

	s.mcp.AddTool(mcp.NewTool("delete_item",
		mcp.WithDescription("Move an item to the trash and drop its hub link."),
		mcp.WithString("hub", mcp.Required(), mcp.Description("Hub document path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Item name")),
		mcp.WithString("confirmation", mcp.Required(), mcp.Description("The configured confirmation phrase")),
	), s.deleteItem)

	s.mcp.AddTool(mcp.NewTool("move_item",
		mcp.WithDescription("Move an item into another hub; both hubs are reconciled."),
		mcp.WithString("item", mcp.Required(), mcp.Description("Item entry document or folder path")),
		mcp.WithString("target_hub", mcp.Required(), mcp.Description("Destination hub document path")),
	), s.moveItem)

	s.mcp.AddTool(mcp.NewTool("get_settings",
		mcp.WithDescription("Return the templates folder and container path settings."),
	), s.getSettings)

	s.mcp.AddTool(mcp.NewTool("update_settings",
		mcp.WithDescription("Replace the templates folder and container path settings."),
		mcp.WithString("templates_folder", mcp.Description("Folder holding MOCTemplate.md and item templates")),
		mcp.WithString("container_path", mcp.Description("Restrict hub discovery to this folder (empty for the whole vault)")),
	), s.updateSettings)

	s.mcp.AddTool(mcp.NewTool("get_hub_conventions",
		mcp.WithDescription("Returns the hub and item folder conventions. "+
			"Call this before creating hubs or items."),
	), s.getHubConventions)

	// Resource: hub conventions.
	s.mcp.AddResource(
		mcp.NewResource(conventionsURI, "Hub Conventions",
			mcp.WithResourceDescription("Folder and link conventions enforced on hubs and items."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventionsResource,
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

// toolError reports err with its kind so callers can tell user mistakes from
// failures.
func toolError(err error) *mcp.CallToolResult {
	kind := apperr.KindOf(err).String()
	if errors.Is(err, apperr.ErrConflict) {
		kind = "conflict"
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", kind, err.Error()))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// optional returns the string argument key, or "" when absent.
func optional(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func (s *Server) listHubs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hubs, err := s.ops.Hubs(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(hubs)
}

func (s *Server) updateHubs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if p := optional(req, "path"); p != "" {
		rep, err := s.ops.Update(ctx, p)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(rep)
	}
	reports, err := s.ops.UpdateAll(ctx)
	if err != nil && len(reports) == 0 {
		return toolError(err), nil
	}
	out := map[string]any{"reports": reports}
	if err != nil {
		out["errors"] = err.Error()
	}
	return jsonResult(out)
}

func (s *Server) createHub(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hub, err := s.ops.CreateHub(ctx, optional(req, "dir"), name)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", hub)), nil
}

func (s *Server) convertToHub(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hub, err := s.ops.ConvertToHub(ctx, p)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("converted: %s", hub)), nil
}

func (s *Server) renameHub(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hub, err := s.ops.RenameHub(ctx, p, name)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s", hub)), nil
}

func (s *Server) deleteHub(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ops.DeleteHub(ctx, p, optional(req, "confirmation")); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", p)), nil
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hub, err := req.RequireString("hub")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.ops.CreateItem(ctx, hub, name)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", entry)), nil
}

func (s *Server) renameItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hub, err := req.RequireString("hub")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	oldName, err := req.RequireString("old_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newName, err := req.RequireString("new_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.ops.RenameItem(ctx, hub, oldName, newName)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s", entry)), nil
}

func (s *Server) deleteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hub, err := req.RequireString("hub")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ops.DeleteItem(ctx, hub, name, optional(req, "confirmation")); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", name)), nil
}

func (s *Server) moveItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item, err := req.RequireString("item")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target_hub")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.ops.MoveItem(ctx, item, target)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s", entry)), nil
}

func (s *Server) getSettings(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.settings.Get())
}

func (s *Server) updateSettings(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	next := settings.Settings{
		TemplatesFolder: optional(req, "templates_folder"),
		ContainerPath:   optional(req, "container_path"),
	}
	if err := s.settings.Update(next); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.settings.Get())
}

func (s *Server) getHubConventions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(HubConventions), nil
}

func (s *Server) readConventionsResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      conventionsURI,
			MIMEType: "text/markdown",
			Text:     HubConventions,
		},
	}, nil
}
