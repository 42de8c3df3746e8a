package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/api/handlers"
	"github.com/BaSui01/agentteam/internal/server"
)

// publicPaths 不需要认证的端点
var publicPaths = []string{"/health", "/healthz", "/readyz", "/version", "/metrics"}

// routes 挂载全部端点
func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, a.logger)
	for _, c := range a.checks {
		health.RegisterCheck(c)
	}
	mux.HandleFunc("GET /health", health.HandleReady)
	mux.HandleFunc("GET /healthz", health.HandleLive)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	handlers.NewConversationHandler(a.service, a.logger).Register(mux)
	handlers.NewStreamHandler(a.service, a.logger).Register(mux)
	return mux
}

// handler 路由加中间件链。ctx 控制限流器的后台清理。
func (a *app) handler(ctx context.Context) http.Handler {
	sc := a.cfg.Server
	chain := []Middleware{
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(a.logger),
	}
	switch {
	case sc.JWTSecret != "":
		chain = append(chain, JWTAuth(sc.JWTSecret, sc.JWTIssuer, publicPaths, a.logger))
	case len(sc.APIKeys) > 0:
		chain = append(chain, APIKeyAuth(sc.APIKeys, publicPaths, true, a.logger))
	default:
		a.logger.Warn("authentication disabled: set server.api_keys or server.jwt_secret")
	}
	if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, float64(sc.RateLimitRPS), max(sc.RateLimitBurst, 1), a.logger))
	}
	chain = append(chain, MetricsMiddleware(a.metrics))
	return Chain(a.routes(), chain...)
}

// serve 运行 HTTP 服务直到 ctx 结束
func (a *app) serve(ctx context.Context) error {
	sc := a.cfg.Server
	cfg := server.DefaultConfig()
	cfg.Addr = fmt.Sprintf(":%d", sc.HTTPPort)
	if sc.ReadTimeout > 0 {
		cfg.ReadTimeout = sc.ReadTimeout
	}
	if sc.WriteTimeout > 0 {
		cfg.WriteTimeout = sc.WriteTimeout
	}
	if sc.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = sc.ShutdownTimeout
	}

	m := server.NewManager(a.handler(ctx), cfg, a.logger)
	a.start()
	a.logger.Info("serving",
		zap.String("addr", cfg.Addr),
		zap.String("store", string(a.stores.Type)),
		zap.Int("teams", len(a.cfg.Teams)))
	return m.Run(ctx)
}
