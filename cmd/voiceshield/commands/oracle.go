package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/oracle/remote"
)

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Embedding oracle tools",
}

var (
	serveAddr    string
	servePath    string
	servePending int
)

var oracleServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the context's projector oracle over WebSocket",
	Long: `Serve the projector oracle configured in the context to remote clients
(voiceshield --oracle ws://host:port/embed). Prometheus metrics are served
on /metrics.

Examples:
  voiceshield oracle serve --addr :8765
  voiceshield protect speech.wav --oracle ws://localhost:8765/embed`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		services, err := cfg.LoadServices(contextName)
		if err != nil {
			return err
		}
		if services.Oracle.Kind != config.OracleProjector {
			return fmt.Errorf("oracle serve needs a projector oracle, context uses %q", services.Oracle.Kind)
		}

		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle(servePath, remote.NewHandler(newProjector(services.Oracle),
			remote.WithHandlerLogger(logger),
			remote.WithPendingWindow(servePending),
		))
		mux.Handle("/metrics", promhttp.Handler())
		return serve(cmd.Context(), ln, mux, func(addr string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving oracle on ws://%s%s\n", addr, servePath)
		})
	},
}

// serve runs an HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, h http.Handler, ready func(addr string)) error {
	server := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if ready != nil {
		ready(ln.Addr().String())
	}
	logger.Info("oracle server started", "addr", ln.Addr().String())
	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	oracleServeCmd.Flags().StringVar(&serveAddr, "addr", ":8765", "listen address")
	oracleServeCmd.Flags().StringVar(&servePath, "path", "/embed", "WebSocket endpoint path")
	oracleServeCmd.Flags().IntVar(&servePending, "pending-window", remote.DefaultPendingWindow, "embed_grad results kept per connection awaiting backward")

	oracleCmd.AddCommand(oracleServeCmd)
	rootCmd.AddCommand(oracleCmd)
}
