package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbhalerao/codesmriti/internal/auth"
	"github.com/kbhalerao/codesmriti/internal/job"
	"github.com/kbhalerao/codesmriti/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job and search API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.cleanup()

	secret := application.cfg.TokenSecret()
	verifier, err := auth.NewVerifier(secret, "codesmriti")
	if err != nil {
		return fmt.Errorf("token secret missing: set %s", application.cfg.Server.TokenSecretEnv)
	}

	queue := job.NewQueue(application.pipeline, job.Config{
		WorkerPoolSize: application.cfg.Jobs.WorkerPoolSize,
		QueueCapacity:  application.cfg.Jobs.QueueCapacity,
	})
	defer queue.Close()

	srv := server.New(queue, application.engine, verifier, application.cfg.Paths.CheckoutDir)

	addr := serveAddr
	if addr == "" {
		addr = application.cfg.Server.Addr
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
