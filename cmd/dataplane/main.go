package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wso2/gateway-core/internal/dpsync"
	"github.com/wso2/gateway-core/internal/policyhost"
	"github.com/wso2/gateway-core/internal/proxyglue"
	"github.com/wso2/gateway-core/internal/tracing"
	"github.com/wso2/gateway-core/pkg/config"
	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/logger"
	"github.com/wso2/gateway-core/pkg/model"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_DP_CONFIG"), "path to DP config TOML file")
	flag.Parse()

	cfg, err := config.LoadDP(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})
	log.Info("starting gateway data plane", slog.String("version", version), slog.String("bind", cfg.Listener.Bind))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{ServiceName: "gateway-dataplane"})
	if err != nil {
		log.Error("failed to init tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	host := policyhost.NewHost(ctx, policyhost.DefaultConfig(), log)
	defer host.Close(context.Background())

	runtimeStore := dpsync.NewRuntimeStore()
	syncClient := dpsync.NewClient(dpsync.DefaultConfig(cfg.ControlPlane.GRPCEndpoint), runtimeStore, host, log)
	syncClient.Start(ctx)
	defer syncClient.Stop()

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {},
		ModifyResponse: func(resp *http.Response) error {
			return nil
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		serveRequest(w, r, runtimeStore, host, proxy, log)
	})

	server := &http.Server{Addr: cfg.Listener.Bind, Handler: mux}
	go func() {
		log.Info("data plane listener up", slog.String("bind", cfg.Listener.Bind))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("data plane listener stopped", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down gateway data plane")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

// serveRequest runs the pre_upstream pipeline against the current
// RuntimeSnapshot and forwards to the selected upstream peer. Connection
// lifecycle, TLS termination, and upstream dialling are the HTTP proxy
// framework's job (out of scope per spec.md §1); this handler only
// performs the request-view extraction, policy evaluation, and header/path
// mutation the core specifies, then delegates actual forwarding to
// net/http/httputil.ReverseProxy.
func serveRequest(w http.ResponseWriter, r *http.Request, store *dpsync.RuntimeStore, host *policyhost.Host, proxy *httputil.ReverseProxy, log *slog.Logger) {
	snap := store.Load()
	if snap == nil {
		http.Error(w, "no route", http.StatusInternalServerError)
		return
	}

	view := model.RequestView{
		Method: r.Method,
		Path:   r.URL.Path,
		Host:   r.Host,
	}
	for name, values := range r.Header {
		for _, v := range values {
			view.Headers = append(view.Headers, model.HeaderPair{Name: name, Value: v})
		}
	}

	outcome, err := proxyglue.Apply(r.Context(), snap, host, view)
	if err != nil {
		log.Error("pre_upstream pipeline failed", slog.Any("error", err), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		if errors.Is(err, gwerrors.ErrNoRoute) {
			http.Error(w, "no route", http.StatusInternalServerError)
			return
		}
		http.Error(w, "no upstream", http.StatusInternalServerError)
		return
	}

	r.Method = outcome.Method
	r.URL.Path = outcome.Path
	r.Header = make(http.Header)
	for _, h := range outcome.Headers {
		r.Header.Add(h.Name, h.Value)
	}

	scheme := "http"
	if outcome.Peer.TLS {
		scheme = "https"
	}
	target := &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", outcome.Peer.Host, outcome.Peer.Port)}

	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
	}
	proxy.ServeHTTP(w, r)
}
