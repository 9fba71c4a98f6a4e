package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/voiceops/internal/orchestrator"
	"github.com/mark3labs/voiceops/internal/readmodel"
)

// handleSubmit submits a command and waits for the pipeline to answer.
func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultText("error: missing 'text' parameter"), nil
	}

	if err := s.engine.Submit(ctx, text); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	snap, err := s.engine.Wait(ctx)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(describe(snap)), nil
}

// handleConfirm confirms the pending plan and waits for execution.
func (s *Server) handleConfirm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Confirm(ctx); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	snap, err := s.engine.Wait(ctx)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(describe(snap)), nil
}

func (s *Server) handleClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Clear(ctx); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText("Cleared"), nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(s.engine.Snapshot(), "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: failed to marshal state: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleReconnect runs a reconnect, including its retry, to completion.
func (s *Server) handleReconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.monitor == nil {
		return mcp.NewToolResultText("error: connectivity monitor not available"), nil
	}
	// A first-attempt failure is expected to be followed by the retry.
	_ = s.monitor.Reconnect(ctx)
	if err := s.monitor.Wait(ctx); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	st := s.monitor.State()
	if st.Error != "" {
		return mcp.NewToolResultText(fmt.Sprintf("Backend %s: %s", st.Status, st.Error)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Backend %s (jira=%t slack=%t tickets=%d)",
		st.Status, st.Health.JiraConfigured, st.Health.SlackConfigured, st.Health.TicketCount())), nil
}

func (s *Server) handleRunESQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preset, err := request.RequireString("preset")
	if err != nil {
		return mcp.NewToolResultText("error: missing 'preset' parameter"), nil
	}
	if s.views == nil {
		return mcp.NewToolResultText("error: backend not available"), nil
	}

	res := readmodel.RunPreset(ctx, s.views, preset)
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// describe renders a snapshot for an agent reading tool output.
func describe(snap orchestrator.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s (command %d)\n", snap.Phase, snap.Token)
	if snap.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", snap.Error)
	}

	switch snap.Phase {
	case orchestrator.PhaseAwaitingConfirmation:
		plan := snap.Result.Pipeline.Plan
		fmt.Fprintf(&b, "Plan (%s confidence):\n", plan.Confidence)
		for _, a := range plan.Actions {
			fmt.Fprintf(&b, "  %d. %s: %s\n", a.Step, a.Type, a.Description)
		}
		if plan.HasDuplicateWarning() {
			fmt.Fprintf(&b, "Duplicate warning: %s\n", *plan.DuplicateWarning)
		}
		b.WriteString("Call confirm_action to execute or clear_result to discard.")
	case orchestrator.PhaseAwaitingClarification:
		b.WriteString("The command is ambiguous. Call submit_command with more detail.")
	case orchestrator.PhaseCompleted:
		for _, o := range snap.Execution.Outcomes {
			mark := "ok"
			switch {
			case o.Skipped:
				mark = "skipped"
			case !o.Success:
				mark = "failed"
			}
			fmt.Fprintf(&b, "  %d. %s: %s", o.Step, o.Type, mark)
			if msg := o.MessageText(); msg != "" {
				fmt.Fprintf(&b, " (%s)", msg)
			}
			b.WriteString("\n")
		}
		if n := len(snap.AuditLog); n > 0 {
			fmt.Fprintf(&b, "Summary: %s", snap.AuditLog[n-1].OutcomeSummary)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
