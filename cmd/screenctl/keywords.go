package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entity-screening/backend/internal/keywords"
)

func queriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries [entity]",
		Short: "Print the search queries generated for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			max, _ := cmd.Flags().GetInt("max")
			file, _ := cmd.Flags().GetString("keywords")

			tax, err := loadTaxonomy(file)
			if err != nil {
				return err
			}
			cat, err := keywords.ParseCategory(category)
			if err != nil {
				return err
			}

			queries, err := keywords.Generate(tax, args[0], cat, max)
			if err != nil {
				return err
			}
			for _, q := range queries {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}

	cmd.Flags().StringP("category", "c", "all", "keyword category (financial_crimes, corruption_bribery, all)")
	cmd.Flags().IntP("max", "n", 5, "maximum number of queries")
	cmd.Flags().StringP("keywords", "k", "", "exported taxonomy file to use instead of the seed")

	return cmd
}

func keywordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Inspect and manage the keyword taxonomy",
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the taxonomy as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("keywords")
			tax, err := loadTaxonomy(file)
			if err != nil {
				return err
			}
			return writeJSON(cmd, tax.Export())
		},
	}
	export.Flags().StringP("keywords", "k", "", "taxonomy file to re-export (default: seed)")

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Validate an exported taxonomy and print its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tax, err := loadTaxonomy(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, tax.Stats())
		},
	}

	add := &cobra.Command{
		Use:   "add [category] [keyword]",
		Short: "Add a keyword to a taxonomy file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("keywords")
			tax, err := loadTaxonomy(file)
			if err != nil {
				return err
			}
			cat, err := keywords.ParseCategory(args[0])
			if err != nil {
				return err
			}
			next, err := tax.WithKeyword(args[1], cat)
			if err != nil {
				return err
			}
			return saveTaxonomy(cmd, file, next)
		},
	}
	add.Flags().StringP("keywords", "k", "", "taxonomy file to update (default: print to stdout)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print keyword counts per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("keywords")
			tax, err := loadTaxonomy(file)
			if err != nil {
				return err
			}
			s := tax.Stats()
			for _, c := range tax.Categories() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", c, s.Categories[c])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d (%d unique)\n", "total", s.Total, s.Unique)
			return nil
		},
	}
	stats.Flags().StringP("keywords", "k", "", "taxonomy file (default: seed)")

	cmd.AddCommand(export, importCmd, add, stats)
	return cmd
}

func loadTaxonomy(path string) (*keywords.Taxonomy, error) {
	if path == "" {
		return keywords.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var data map[string][]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return keywords.Import(data)
}

func saveTaxonomy(cmd *cobra.Command, path string, tax *keywords.Taxonomy) error {
	if path == "" {
		return writeJSON(cmd, tax.Export())
	}
	raw, err := json.MarshalIndent(tax.Export(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%d keywords)\n", path, tax.Stats().Total)
	return nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
