package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/voiceops/internal/gate"
	"github.com/mark3labs/voiceops/internal/orchestrator"
	"github.com/mark3labs/voiceops/internal/voice"
	"github.com/spf13/cobra"
)

var runFlags struct {
	audio string
	yes   bool
}

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Process one command, confirm its plan and execute it",
	Long: `Process one operations command through the pipeline, show the proposed
plan and execute it after confirmation.

The command is taken from the arguments, or transcribed from --audio.
Without either, a few sample commands are listed.`,
	Example: `  voiceops run "Close ticket AUTH-204 and notify the backend team on Slack"
  voiceops run --audio command.webm`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.audio, "audio", "a", "", "Transcribe the command from this audio file")
	runCmd.Flags().BoolVarP(&runFlags.yes, "yes", "y", false, "Confirm the plan without prompting")
}

func runRun(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" && runFlags.audio == "" {
		fmt.Println("Try one of these commands:")
		for _, c := range orchestrator.SampleCommands {
			fmt.Printf("  voiceops run %q\n", c)
		}
		return nil
	}

	rt, _, err := startRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := rt.Engine()
	if runFlags.audio != "" {
		fmt.Println("Transcribing...")
		heard, err := e.SubmitAudio(ctx, voice.FileCapture{Path: runFlags.audio})
		if err != nil {
			if errors.Is(err, orchestrator.ErrEmptyCommand) {
				return fmt.Errorf("could not transcribe %s: %w", runFlags.audio, err)
			}
			return err
		}
		fmt.Printf("Heard: %s\n", heard)
	} else if err := e.Submit(ctx, text); err != nil {
		return err
	}
	fmt.Println("Processing...")

	return drive(ctx, e, bufio.NewReader(os.Stdin), os.Stdout, runFlags.yes)
}

// commandEngine is the part of the engine the interactive loop drives.
type commandEngine interface {
	Submit(ctx context.Context, text string) error
	Confirm(ctx context.Context) error
	Clear(ctx context.Context) error
	Wait(ctx context.Context) (orchestrator.Snapshot, error)
}

// drive walks a submitted command through clarification and confirmation
// prompts until it settles.
func drive(ctx context.Context, e commandEngine, in *bufio.Reader, out io.Writer, autoConfirm bool) error {
	for {
		snap, err := e.Wait(ctx)
		if err != nil {
			return err
		}

		switch snap.Phase {
		case orchestrator.PhaseAwaitingConfirmation:
			printPlan(out, snap)
			ok := autoConfirm
			if !ok {
				ok = promptYes(in, out, "Execute these actions? [y/N]: ")
			}
			if !ok {
				fmt.Fprintln(out, "Cancelled, nothing was executed.")
				return e.Clear(ctx)
			}
			if err := e.Confirm(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Executing...")

		case orchestrator.PhaseAwaitingClarification:
			fmt.Fprintln(out, "The command is ambiguous. Please add detail (empty to cancel):")
			answer, _ := in.ReadString('\n')
			answer = strings.TrimSpace(answer)
			if answer == "" {
				return e.Clear(ctx)
			}
			if err := e.Submit(ctx, answer); err != nil {
				return err
			}

		case orchestrator.PhaseCompleted:
			printOutcomes(out, snap)
			return nil

		case orchestrator.PhaseFailed:
			return errors.New(snap.Error)

		default:
			return fmt.Errorf("unexpected phase %s", snap.Phase)
		}
	}
}

func promptYes(in *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, _ := in.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printPlan(out io.Writer, snap orchestrator.Snapshot) {
	res := snap.Result
	fmt.Fprintf(out, "\nIntent: %s\n", res.Pipeline.Intent.Intent)
	for _, t := range res.Pipeline.Context.SimilarTickets {
		fmt.Fprintf(out, "  similar: %s %s [%s/%s] %.0f%%\n", t.TicketID, t.Summary, t.Priority, t.Status, t.RelevanceScore*100)
	}

	plan := res.Pipeline.Plan
	fmt.Fprintf(out, "Plan (%s confidence):\n", plan.Confidence)
	for _, a := range plan.Actions {
		fmt.Fprintf(out, "  %d. [%s] %s\n", a.Step, a.Type, a.Description)
	}
	if plan.Reasoning != "" {
		fmt.Fprintf(out, "Reasoning: %s\n", plan.Reasoning)
	}
	if plan.HasDuplicateWarning() {
		fmt.Fprintf(out, "Warning: %s\n", *plan.DuplicateWarning)
	}
	if snap.Verdict.Emphasis == gate.EmphasisCareful {
		fmt.Fprintln(out, "Review this plan carefully before confirming.")
	}
}

func printOutcomes(out io.Writer, snap orchestrator.Snapshot) {
	fmt.Fprintln(out)
	for _, o := range snap.Execution.Outcomes {
		mark := "✓"
		switch {
		case o.Skipped:
			mark = "-"
		case !o.Success:
			mark = "✗"
		}
		fmt.Fprintf(out, "  %s %d. %s", mark, o.Step, o.Type)
		if msg := o.MessageText(); msg != "" {
			fmt.Fprintf(out, ": %s", msg)
		}
		fmt.Fprintln(out)
	}
	if n := len(snap.AuditLog); n > 0 {
		fmt.Fprintf(out, "\n%s\n", snap.AuditLog[n-1].OutcomeSummary)
	}
}
