package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatlens/internal/api"
	"chatlens/internal/history"
	"chatlens/internal/tracker"
	"chatlens/internal/transcript"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var detach bool
	var pollSeconds int
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "upload <file.json>",
		Short: "Upload a chat log export and watch its evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			client, err := ctx.chatlogsClient()
			if err != nil {
				return err
			}
			handles, err := ctx.handleStore()
			if err != nil {
				return err
			}

			path := args[0]
			doc, err := transcript.Load(path)
			if err != nil {
				return err
			}
			summary := doc.Summarize()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploading %s (interaction %s, %d messages from %s)\n",
				filepath.Base(path), summary.InteractionID, summary.MessageCount,
				strings.Join(summary.Senders, ", "))

			pollInterval := cfg.PollInterval()
			if pollSeconds > 0 {
				pollInterval = time.Duration(pollSeconds) * time.Second
			}
			processingTimeout := cfg.ProcessingTimeout()
			if timeoutSeconds > 0 {
				processingTimeout = time.Duration(timeoutSeconds) * time.Second
			}

			trk := tracker.New(client, handles,
				tracker.WithLogger(logger),
				tracker.WithPollInterval(pollInterval),
				tracker.WithProcessingTimeout(processingTimeout),
				tracker.WithOnUpdate(func(snap tracker.Snapshot) {
					fmt.Fprintln(out, progressLine(snap))
				}),
			)

			if err := trk.Submit(cmd.Context(), path); err != nil {
				return err
			}

			snap := trk.Snapshot()
			fmt.Fprintf(out, "Job %s accepted; processing started\n", snap.Job.ID)
			if detach {
				fmt.Fprintln(out, "Detached; run 'chatlens resume' to pick the job back up")
				return nil
			}

			snap, err = trk.Wait(cmd.Context())
			if err != nil {
				trk.Cancel()
				recordOutcome(ctx, cmd, trk.Snapshot(), filepath.Base(path))
				return err
			}
			recordOutcome(ctx, cmd, snap, filepath.Base(path))
			return reportOutcome(cmd, snap)
		},
	}

	cmd.Flags().BoolVar(&detach, "detach", false, "Start processing and return without waiting")
	cmd.Flags().IntVar(&pollSeconds, "poll-interval", 0, "Seconds between status polls (default from config)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "Seconds to wait for a verdict before giving up (default from config)")
	return cmd
}

func progressLine(snap tracker.Snapshot) string {
	names := make([]string, 0, len(snap.Job.AgentStates))
	for name := range snap.Job.AgentStates {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, snap.Job.AgentStates[name]))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("  status: %s", snap.Job.OverallStatus)
	}
	return fmt.Sprintf("  status: %s (%s)", snap.Job.OverallStatus, strings.Join(parts, " "))
}

// recordOutcome writes the settled job into local history. Abandoned phases
// (timed out, cancelled) are recorded alongside server verdicts so the record
// reflects every watched upload. History is advisory; a write failure is
// reported but never fails the command.
func recordOutcome(ctx *commandContext, cmd *cobra.Command, snap tracker.Snapshot, sourceFile string) {
	if !snap.Phase.Settled() || snap.Job.ID == "" {
		return
	}
	store, err := ctx.historyStore()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: history unavailable: %v\n", err)
		return
	}
	defer store.Close()

	entry := history.Entry{
		JobID:         snap.Job.ID,
		InteractionID: snap.Job.InteractionID,
		SourceFile:    sourceFile,
		Outcome:       string(snap.Phase),
		AgentStates:   snap.Job.AgentStates,
		CreatedAt:     snap.Job.CreatedAt,
		FinishedAt:    time.Now().UTC(),
	}
	if snap.Err != nil {
		entry.ErrorMessage = snap.Err.Error()
	}
	if err := store.Record(cmd.Context(), entry); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: record history: %v\n", err)
	}
}

func reportOutcome(cmd *cobra.Command, snap tracker.Snapshot) error {
	out := cmd.OutOrStdout()
	switch snap.Phase {
	case tracker.PhaseCompleted:
		fmt.Fprintf(out, "Processing completed for job %s\n", snap.Job.ID)
		fmt.Fprintf(out, "Run 'chatlens results %s' to see the evaluation\n", snap.Job.ID)
		return nil
	case tracker.PhaseFailed:
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("processing failed for job %s", snap.Job.ID)
	case tracker.PhaseTimedOut:
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("gave up waiting for job %s", snap.Job.ID)
	case tracker.PhaseCancelled:
		fmt.Fprintf(out, "Stopped watching job %s\n", snap.Job.ID)
		return nil
	default:
		fmt.Fprintf(out, "Job %s is %s\n", snap.Job.ID, snap.Job.OverallStatus)
		return nil
	}
}

func agentStateRows(states map[string]api.AgentState, errs map[string]string) [][]string {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, string(states[name]), errs[name]})
	}
	return rows
}
