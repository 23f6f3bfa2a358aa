package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sprite-ai/cmtree/internal/api"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the cmtree linearizer.

Endpoints:
  GET  /health         Health check
  POST /api/linearize  Linearize a thread in one request
  GET  /api/ws         WebSocket for live viewing sessions
  GET  /metrics        Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides server.host)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Server
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		sc.Host = addr
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		sc.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.New(sc, api.WithLogger(logger))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	return g.Wait()
}
