package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/entity-screening/backend/internal/scoring"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [score...]",
		Short: "Map risk scores onto risk levels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				score, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid score %q: %w", arg, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", arg, scoring.ClassifyLevel(score))
			}
			return nil
		},
	}
}

func assessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assess [file|-]",
		Short: "Parse a saved model response into a risk assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			a, err := scoring.ParseAssessment(string(raw))
			if err != nil {
				return err
			}
			return writeJSON(cmd, a)
		},
	}
}
