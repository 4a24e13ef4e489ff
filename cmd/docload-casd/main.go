package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/docloader/internal/logging"
	"xdao.co/docloader/storage"
	"xdao.co/docloader/storage/casconfig"
	"xdao.co/docloader/storage/casregistry"
	"xdao.co/docloader/storage/grpccas"

	_ "xdao.co/docloader/storage/ipfs"
	_ "xdao.co/docloader/storage/localfs"
	_ "xdao.co/docloader/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	listen        string
	metricsListen string
	backend       string
	casConfig     string
	logLevel      string
	logFormat     string
	maxMsgBytes   int
	listBackends  bool
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("docload-casd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	fs.StringVar(&o.listen, "listen", "127.0.0.1:7777", "gRPC listen address")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "Prometheus /metrics listen address (empty disables)")
	fs.StringVar(&o.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&o.casConfig, "cas-config", "", "CAS config file (JSON or YAML; overrides --backend)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error, off)")
	fs.StringVar(&o.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")
	fs.IntVar(&o.maxMsgBytes, "max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
	fs.BoolVar(&o.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if o.listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log, err := logging.New(errOut, o.logLevel, o.logFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	cas, closeFn, err := openCAS(o, log)
	if err != nil {
		log.Error("open CAS", zap.String("backend", o.backend), zap.Error(err))
		return 2
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				log.Warn("close CAS", zap.Error(err))
			}
		}()
	}

	lis, err := net.Listen("tcp", o.listen)
	if err != nil {
		log.Error("listen", zap.String("addr", o.listen), zap.Error(err))
		return 1
	}
	var mlis net.Listener
	if o.metricsListen != "" {
		mlis, err = net.Listen("tcp", o.metricsListen)
		if err != nil {
			_ = lis.Close()
			log.Error("metrics listen", zap.String("addr", o.metricsListen), zap.Error(err))
			return 1
		}
	}
	if err := serve(ctx, lis, mlis, cas, o, log); err != nil {
		log.Error("serve", zap.Error(err))
		return 1
	}
	return 0
}

func openCAS(o options, log *zap.Logger) (storage.CAS, func() error, error) {
	if o.casConfig == "" {
		return casregistry.Open(o.backend, casregistry.UsageDaemon)
	}
	cfg, err := casconfig.LoadFile(o.casConfig)
	if err != nil {
		return nil, nil, err
	}
	cfg.Logger = log
	return cfg.Open(casregistry.UsageDaemon, "")
}

// serve runs the gRPC service on lis, and /metrics on mlis when it is not
// nil, until ctx is done or the gRPC server fails. The metrics server is shut
// down and mlis closed before serve returns.
func serve(ctx context.Context, lis, mlis net.Listener, cas storage.CAS, o options, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var srvOpts []grpc.ServerOption
	if o.maxMsgBytes > 0 {
		srvOpts = append(srvOpts, grpc.MaxRecvMsgSize(o.maxMsgBytes), grpc.MaxSendMsgSize(o.maxMsgBytes))
	}
	s := grpc.NewServer(srvOpts...)
	grpccas.RegisterCASServer(s, &grpccas.Server{
		CAS:     cas,
		Logger:  log.Named("grpccas"),
		Metrics: grpccas.NewMetrics(reg),
	})

	var metricsSrv *http.Server
	if mlis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.Serve(mlis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		log.Info("metrics listening", zap.String("addr", mlis.Addr().String()))
	}

	served := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			s.GracefulStop()
		case <-served:
		}
	}()

	log.Info("docload-casd listening", zap.String("addr", lis.Addr().String()), zap.String("backend", o.backend))
	err := s.Serve(lis)
	close(served)
	<-stopped

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		_ = mlis.Close()
	}
	return err
}
