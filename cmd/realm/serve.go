package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"realm/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the edge shell and the harness bridge",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize app: %v", err)
		}

		go func() {
			if err := a.Start(ctx); err != nil {
				log.Printf("Server error: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			os.Exit(1)
		}
		log.Println("Server exiting")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
