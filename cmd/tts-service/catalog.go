package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVoicesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the configured engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer env.close()

			engine, err := newGuardedEngine(env.cfg, nil, env.log)
			if err != nil {
				return err
			}

			table := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(table, "ID\tNAME\tLANGUAGE\tGENDER")

			for _, voice := range engine.ListVoices(cmd.Context()) {
				fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", voice.ID, voice.DisplayName, voice.Language, voice.Gender)
			}

			return table.Flush()
		},
	}
}

func newModelsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured engine serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer env.close()

			engine, err := newGuardedEngine(env.cfg, nil, env.log)
			if err != nil {
				return err
			}

			for _, model := range engine.ListModels(cmd.Context()) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", model.ID, model.Owner)
			}

			return nil
		},
	}
}
