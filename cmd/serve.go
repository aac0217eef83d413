package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	httpapi "lab-scheduler.com/lab-scheduler/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Starts the scheduling HTTP API and the cron-driven background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Println(".env file not found, using environment variables")
		}

		a := buildApp()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := a.runner.Start(ctx); err != nil {
			return err
		}

		e := echo.New()
		e.HideBanner = true
		h := httpapi.NewHandler(a.rotation, a.taskGen, a.meetings, a.equipment, a.runner, a.cfg.GenerationHorizonDays)
		httpapi.Register(e, h, a.cfg.RateLimit)

		go func() {
			a.log.Info().Str("addr", a.cfg.AppURL).Msg("HTTP server listening")
			if err := e.Start(a.cfg.AppURL); err != nil {
				a.log.Info().Err(err).Msg("server stopped")
			}
		}()

		<-ctx.Done()

		echoCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		_ = e.Shutdown(echoCtx)

		a.runner.Stop()

		a.log.Info().Msg("HTTP server and job runner shut down gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
