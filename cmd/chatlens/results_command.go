package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatlens/internal/api"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "results <job-id>",
		Short: "Show the evaluation, analysis, and coaching results for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.chatlogsClient()
			if err != nil {
				return err
			}
			jobID := args[0]

			var (
				evaluation     *api.Evaluation
				analysis       *api.Analysis
				recommendation *api.Recommendation
			)

			// The three documents live behind independent endpoints; fetch
			// them together. A 404 means that agent produced nothing.
			group, groupCtx := errgroup.WithContext(cmd.Context())
			group.Go(func() error {
				var err error
				evaluation, err = client.Evaluation(groupCtx, jobID)
				return ignoreNotFound(err)
			})
			group.Go(func() error {
				var err error
				analysis, err = client.Analysis(groupCtx, jobID)
				return ignoreNotFound(err)
			})
			group.Go(func() error {
				var err error
				recommendation, err = client.Recommendation(groupCtx, jobID)
				return ignoreNotFound(err)
			})
			if err := group.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if evaluation == nil && analysis == nil && recommendation == nil {
				fmt.Fprintf(out, "No results available for job %s yet\n", jobID)
				return nil
			}

			if evaluation != nil {
				printEvaluation(cmd, evaluation)
			}
			if analysis != nil {
				printAnalysis(cmd, analysis)
			}
			if recommendation != nil {
				printRecommendation(cmd, recommendation)
			}
			return nil
		},
	}
}

func ignoreNotFound(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func printEvaluation(cmd *cobra.Command, evaluation *api.Evaluation) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Evaluation")
	rows := [][]string{
		{"Coherence", formatScore(evaluation.Coherence)},
		{"Relevance", formatScore(evaluation.Relevance)},
		{"Politeness", formatScore(evaluation.Politeness)},
		{"Resolution", formatScore(evaluation.Resolution)},
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Score"}, rows, []columnAlignment{alignLeft, alignRight}))
	if summary := strings.TrimSpace(evaluation.EvaluationSummary); summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", summary)
	}
	if reasoning := strings.TrimSpace(evaluation.Reasoning); reasoning != "" {
		fmt.Fprintf(out, "Reasoning: %s\n", reasoning)
	}
	fmt.Fprintln(out)
}

func printAnalysis(cmd *cobra.Command, analysis *api.Analysis) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Guideline analysis")
	if len(analysis.Guidelines) > 0 {
		names := make([]string, 0, len(analysis.Guidelines))
		for name := range analysis.Guidelines {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			rows = append(rows, []string{name, analysis.Guidelines[name]})
		}
		fmt.Fprintln(out, renderTable([]string{"Guideline", "Verdict"}, rows, nil))
	}
	printBullets(out, "Issues", analysis.Issues)
	printBullets(out, "Highlights", analysis.Highlights)
	if summary := strings.TrimSpace(analysis.AnalysisSummary); summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", summary)
	}
	fmt.Fprintln(out)
}

func printRecommendation(cmd *cobra.Command, recommendation *api.Recommendation) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Coaching recommendation")
	if original := strings.TrimSpace(recommendation.OriginalMessage); original != "" {
		fmt.Fprintf(out, "Original:  %s\n", original)
	}
	if improved := strings.TrimSpace(recommendation.ImprovedMessage); improved != "" {
		fmt.Fprintf(out, "Improved:  %s\n", improved)
	}
	if reasoning := strings.TrimSpace(recommendation.Reasoning); reasoning != "" {
		fmt.Fprintf(out, "Reasoning: %s\n", reasoning)
	}
	printBullets(out, "Suggestions", recommendation.CoachingSuggestions)
}

func printBullets(out io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", label)
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

func formatScore(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
}
