// Command connection-peer is an interactive chat over ducknet connections.
//
// Lines read from stdin are sent reliable-ordered to every connected peer.
// Commands:
//
//	/connect host[:port]   connect to another peer (default port 20020)
//	/stats                 print connection statistics
//	/quit, /q              exit
package main

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/DuckSquadDev/ducknet"
	"github.com/getlantern/golog"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var log = golog.LoggerFor("connection-peer")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		connect    []string
		metrics    string
	)
	cmd := &cobra.Command{
		Use:          "connection-peer",
		Short:        "Chat with other peers over ducknet connections",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := defaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = loadConfig(configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			if cmd.Flags().Changed("metrics") {
				cfg.MetricsAddr = metrics
			}
			cfg.Connect = append(cfg.Connect, connect...)
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "TOML config file")
	cmd.Flags().StringVar(&listen, "listen", "", "accept peers on host:port")
	cmd.Flags().StringSliceVar(&connect, "connect", nil, "connect to host[:port] on startup")
	cmd.Flags().StringVar(&metrics, "metrics", "", "serve Prometheus metrics on this address")
	return cmd
}

func run(ctx context.Context, cfg config, in io.Reader, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	reg := prometheus.NewRegistry()
	p := newPeer(cfg.options(ducknet.NewMetrics(reg)), out)
	defer p.close()
	if cfg.Listen != "" {
		if err := p.listen(cfg.Listen); err != nil {
			return err
		}
	}
	for _, addr := range cfg.Connect {
		if err := p.connect(addr); err != nil {
			return err
		}
	}

	// The reader blocks on stdin and can't be interrupted, so it stays
	// outside the group. It exits at the next line once run returns.
	lines := make(chan string)
	go readLines(in, lines, ctx.Done())

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsRouter(reg)}
		g.Go(func() error {
			log.Debugf("Serving metrics on %v", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "serve metrics")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return p.loop(ctx, cfg.Tick, lines)
	})
	if err := g.Wait(); err != nil && err != errQuit {
		return err
	}
	return nil
}

func metricsRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func readLines(in io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("Unable to read input: %v", err)
	}
}
