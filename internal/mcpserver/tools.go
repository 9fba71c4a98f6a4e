package mcpserver

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/voiceops/internal/readmodel"
)

func (s *Server) registerTools() error {
	s.mcpServer.AddTool(
		mcp.NewTool("submit_command",
			mcp.WithDescription("Submit a natural-language operations command, or answer a clarification request. Returns the proposed plan, which must be confirmed before anything executes."),
			mcp.WithString("text", mcp.Required(),
				mcp.Description("Command text, e.g. 'Close ticket AUTH-204 and notify the backend team on Slack'"),
			),
		),
		s.handleSubmit,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("confirm_action",
			mcp.WithDescription("Confirm the plan awaiting confirmation and execute its actions in order"),
		),
		s.handleConfirm,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("clear_result",
			mcp.WithDescription("Discard the current result and return to idle"),
		),
		s.handleClear,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_state",
			mcp.WithDescription("Return the orchestrator state, audit log and tickets as JSON"),
		),
		s.handleGetState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reconnect",
			mcp.WithDescription("Re-check backend connectivity, retrying once after a short delay"),
		),
		s.handleReconnect,
	)

	ids := make([]string, 0)
	for _, p := range readmodel.Presets() {
		ids = append(ids, p.ID)
	}
	s.mcpServer.AddTool(
		mcp.NewTool("run_esql",
			mcp.WithDescription("Run a preset ES|QL query against the operations data"),
			mcp.WithString("preset", mcp.Required(),
				mcp.Description("Preset ID: "+strings.Join(ids, ", ")),
				mcp.Enum(ids...),
			),
		),
		s.handleRunESQL,
	)

	return nil
}
