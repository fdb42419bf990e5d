package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !viper.GetBool("debug") {
			gin.SetMode(gin.ReleaseMode)
		}

		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		srv := server.New(e.manager, server.Config{
			Addr:           e.config.HTTP.Addr,
			ReadTimeout:    e.config.HTTP.ReadTimeout,
			WriteTimeout:   e.config.HTTP.WriteTimeout,
			CORSOrigins:    e.config.HTTP.CORSOrigins,
			MaxUploadBytes: e.extractor.MaxBytes(),
		}, e.logger.Named("http"))

		if err := srv.Run(ctx); err != nil {
			e.logger.Error("http server stopped", zap.Error(err))
			return err
		}

		e.logger.Info("exiting", zap.String("reason", "shutdown complete"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
}
