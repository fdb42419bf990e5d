package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		config, err := getConfig()
		if err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(config.Store.Driver), driverPostgres) {
			return errors.New("migrate requires store.driver to be postgres")
		}

		pg, err := openPostgres(ctx, config.Store)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			return err
		}

		log.Info("schema applied", zap.String("driver", driverPostgres))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
