package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatlens/internal/tracker"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show the processing status of a job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.chatlogsClient()
			if err != nil {
				return err
			}

			var jobID string
			if len(args) == 1 {
				jobID = args[0]
			} else {
				handles, err := ctx.handleStore()
				if err != nil {
					return err
				}
				h, ok, err := handles.Load()
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("no job id given and no tracked upload found")
				}
				jobID = h.JobID
			}

			status, err := client.Status(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s: %s\n", status.ChatLogID, status.Status)
			if len(status.Progress) > 0 {
				rows := agentStateRows(status.Progress, status.ErrorMessages)
				fmt.Fprintln(out, renderTable([]string{"Agent", "State", "Error"}, rows, nil))
			}
			return nil
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var pollSeconds int
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Re-attach to an in-flight upload and watch it finish",
		Args:  cobra.NoArgs,
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

			pollInterval := cfg.PollInterval()
			if pollSeconds > 0 {
				pollInterval = time.Duration(pollSeconds) * time.Second
			}
			processingTimeout := cfg.ProcessingTimeout()
			if timeoutSeconds > 0 {
				processingTimeout = time.Duration(timeoutSeconds) * time.Second
			}

			out := cmd.OutOrStdout()
			trk := tracker.New(client, handles,
				tracker.WithLogger(logger),
				tracker.WithPollInterval(pollInterval),
				tracker.WithProcessingTimeout(processingTimeout),
				tracker.WithOnUpdate(func(snap tracker.Snapshot) {
					fmt.Fprintln(out, progressLine(snap))
				}),
			)

			resumed, err := trk.ResumeFromHandle()
			if err != nil {
				return err
			}
			if !resumed {
				fmt.Fprintln(out, "No in-flight upload to resume")
				return nil
			}

			snap := trk.Snapshot()
			fmt.Fprintf(out, "Resumed job %s; watching for a verdict\n", snap.Job.ID)

			snap, err = trk.Wait(cmd.Context())
			if err != nil {
				trk.Cancel()
				recordOutcome(ctx, cmd, trk.Snapshot(), "")
				return err
			}
			recordOutcome(ctx, cmd, snap, "")
			return reportOutcome(cmd, snap)
		},
	}

	cmd.Flags().IntVar(&pollSeconds, "poll-interval", 0, "Seconds between status polls (default from config)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "Seconds to wait for a verdict before giving up (default from config)")
	return cmd
}
