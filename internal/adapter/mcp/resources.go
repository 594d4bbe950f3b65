package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentdeck://projects",
			"Project List",
			mcplib.WithResourceDescription("All projects with their embedded agent runs"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProjectsResource,
	)
}

func (s *Server) handleProjectsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Projects == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"project service not configured"}`,
			},
		}, nil
	}
	projects, err := s.deps.Projects.List(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(projects)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
