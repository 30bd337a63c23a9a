package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"xdao.co/dagnode/node"
	"xdao.co/dagnode/storage/grpcstore"
	"xdao.co/dagnode/storage/registry"
)

type serveFlags struct {
	listen        string
	metricsListen string
	maxMsgBytes   int
}

func (e *env) serveCmd() *cobra.Command {
	var sf serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the block store over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.serve(cmd.Context(), sf, nil)
		},
	}
	cmd.Flags().StringVar(&sf.listen, "listen", "127.0.0.1:7777", "gRPC listen address")
	cmd.Flags().StringVar(&sf.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&sf.maxMsgBytes, "grpc-max-msg-bytes", 0, "max gRPC message size (0 keeps the default)")
	return cmd
}

// serve runs until ctx is done. ready, when set, receives the bound gRPC
// address once the listener is up.
func (e *env) serve(ctx context.Context, sf serveFlags, ready chan<- net.Addr) error {
	l, err := e.logger()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	n, err := e.openServing(reg, l)
	if err != nil {
		return err
	}
	defer n.Close()

	lis, err := net.Listen("tcp", sf.listen)
	if err != nil {
		return err
	}
	var opts []grpc.ServerOption
	if sf.maxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(sf.maxMsgBytes), grpc.MaxSendMsgSize(sf.maxMsgBytes))
	}
	s := grpc.NewServer(opts...)
	grpcstore.RegisterBlockstoreServer(s, &grpcstore.Server{Store: n.Blocks, Logger: l.Named("grpc")})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("serving block store", zap.String("addr", lis.Addr().String()), zap.String("backend", e.backend))
		return s.Serve(lis)
	})
	var metricsSrv *http.Server
	if sf.metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: sf.metricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	fmt.Fprintf(e.errOut, "dagnode listening on %s (backend=%s)\n", lis.Addr(), e.backend)
	if ready != nil {
		ready <- lis.Addr()
	}

	g.Go(func() error {
		<-gctx.Done()
		s.GracefulStop()
		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(sctx)
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (e *env) openServing(reg prometheus.Registerer, l *zap.Logger) (*node.Node, error) {
	cfg := e.nodeConfig(registry.UsageDaemon, l)
	cfg.Registerer = reg
	return node.Open(cfg)
}
