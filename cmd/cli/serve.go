package cli

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/turtacn/trustkit/pkg/logger"
	"github.com/turtacn/trustkit/pkg/token"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health checks, reloading the token lifetime on config changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, loader, err := newAppWithLoader(opts)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			svc, err := a.tokenService()
			if err != nil {
				return err
			}
			if _, err := a.accessor(ctx); err != nil {
				return err
			}
			if loader.ConfigFile() != "" {
				loader.Watch(svc, nil)
			}

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              addr,
				Handler:           newServeEngine(a, svc),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.log.Info(ctx, "Serving", logger.String("addr", addr), logger.String("config", loader.ConfigFile()))

			select {
			case err := <-errCh:
				if !stderrors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	return cmd
}

func newServeEngine(a *app, svc *token.Service) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		status := gin.H{
			"token_ttl_seconds": int64(svc.TTL().Seconds()),
			"token_encrypted":   svc.Encrypted(),
			"cache_backend":     a.cfg.Cache.Backend,
		}
		code := http.StatusOK
		if a.redis != nil {
			health, err := a.redis.HealthCheck(c.Request.Context())
			status["redis"] = health
			if err != nil {
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	})
	return engine
}
