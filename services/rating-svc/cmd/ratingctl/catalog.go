package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"busbar/services/rating-svc/internal/repository"
	"busbar/services/rating-svc/internal/service"
)

func newCatalogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the clamp catalog",
	}

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog and its configuration sets to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			repos, err := repository.NewRepositories(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer repos.Close()

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := service.NewCatalogService(repos.Catalog, nil).ExportWorkbook(cmd.Context(), f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", output)
			return nil
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "catalog.xlsx", "output file")

	cmd.AddCommand(export)
	return cmd
}
