package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"chatlens/internal/api"
	"chatlens/internal/models"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect server models and pick per-agent defaults",
	}

	modelsCmd.AddCommand(newModelsStatusCommand(ctx))
	modelsCmd.AddCommand(newModelsSelectCommand(ctx))

	return modelsCmd
}

func newModelsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which models the server has installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.modelsClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(status.Models))
			for _, name := range sortedModelNames(status.Models) {
				model := status.Models[name]
				rows = append(rows, []string{
					name,
					model.Type,
					fmt.Sprintf("%.1f GB", model.SizeGB),
					yesNo(model.Installed),
				})
			}
			headers := []string{"Model", "Type", "Size", "Installed"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintf(out, "%d of %d required models installed; system ready: %s\n",
				status.TotalInstalled, status.TotalRequired, yesNo(status.SystemReady))
			return nil
		},
	}
}

func newModelsSelectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select [agent] [model]",
		Short: "Remember which model an agent should use",
		Long: "With no arguments, lists the remembered selections. With an agent and a " +
			"model, records the choice. An empty model string forgets the selection.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selections, err := ctx.modelSelections()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				current, err := selections.Load()
				if err != nil {
					return err
				}
				if len(current) == 0 {
					fmt.Fprintln(out, "No model selections recorded")
					return nil
				}
				rows := make([][]string, 0, len(current))
				for _, agent := range models.SortedAgents(current) {
					rows = append(rows, []string{agent, current[agent]})
				}
				fmt.Fprintln(out, renderTable([]string{"Agent", "Model"}, rows, nil))
				return nil
			}
			if len(args) != 2 {
				return errors.New("usage: chatlens models select <agent> <model>")
			}

			agent, model := args[0], args[1]
			if err := selections.Set(agent, model); err != nil {
				return err
			}
			if strings.TrimSpace(model) == "" {
				fmt.Fprintf(out, "Forgot model selection for %s\n", agent)
			} else {
				fmt.Fprintf(out, "Selected %s for %s\n", model, agent)
			}
			return nil
		},
	}
	return cmd
}

func sortedModelNames(byName map[string]api.ModelStatus) []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
