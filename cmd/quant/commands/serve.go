package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/api"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/api/handlers"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only ops server",
	Long: `Serve health, metrics and stored pipeline outputs over HTTP.

Endpoints:
  GET /health
  GET /metrics
  GET /api/regimes/{region}/latest
  GET /api/regimes/{region}/history?from=&to=
  GET /api/universes/{universe_id}?as_of=&included_only=
  GET /api/portfolios/{portfolio_id}?as_of=

Example:
  go run ./cmd/quant serve
  go run ./cmd/quant serve --port 9000`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (default $HTTP_PORT or 8090)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if servePort != "" {
		a.cfg.HTTPPort = servePort
	}

	server := a.startOpsServer()
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.HTTPPort)
	fmt.Println("\nPress Ctrl+C to stop")

	waitForSignal()
	return a.shutdownOpsServer(server)
}

// startOpsServer serves in the background; errors other than shutdown are logged
func (a *app) startOpsServer() *api.Server {
	routes := api.Routes{
		Regime:    handlers.NewRegimeHandler(a.regimeRepo, a.log),
		Universe:  handlers.NewUniverseHandler(a.universeRepo, a.log),
		Portfolio: handlers.NewPortfolioHandler(a.portfolioRepo, a.log),
		DB:        a.db,
	}
	if a.cfg.MetricsEnabled {
		routes.Metrics = a.recorder.Handler()
	}

	server := api.New(a.cfg, a.log, api.NewRouter(routes, a.log))
	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Error("Ops server stopped")
		}
	}()
	return server
}

func (a *app) shutdownOpsServer(server *api.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}
