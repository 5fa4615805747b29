package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/affandar/toygres/pkg/catalog"
	"github.com/affandar/toygres/pkg/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Catalog Metadata Store schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := catalog.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate catalog metadata store: %w", err)
		}
		fmt.Println("catalog metadata store schema up to date")
		return nil
	},
}
