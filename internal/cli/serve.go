package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bitespeed-identity/internal/handlers"
	"bitespeed-identity/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			log := logger.Get()
			router := handlers.NewRouter(
				handlers.NewIdentifyHandler(a.service, log),
				handlers.NewHealthHandler(a.healthDeps(), log),
				log,
			)

			srv := &http.Server{
				Addr:    ":" + a.cfg.Port,
				Handler: router,
			}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			log.Info("Server started", zap.String("port", a.cfg.Port), zap.String("driver", a.cfg.DatabaseDriver))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				log.Error("Server failed", zap.Error(err))
				return err
			case <-quit:
			}

			log.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				log.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			log.Info("Server exited")
			return nil
		},
	}
}
