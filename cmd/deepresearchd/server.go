// =============================================================================
// 🖥️ HTTP 服务器
// =============================================================================
// 暴露健康检查与 Prometheus 指标,并负责引擎的优雅关闭
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	deepresearch "github.com/anthonyadame/DeepResearchAgent-sub002"
	"github.com/anthonyadame/DeepResearchAgent-sub002/config"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/telemetry"
)

// Server 服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *deepresearch.Engine
	telemetry *telemetry.Provider
	httpSrv   *http.Server
}

// NewServer 组装引擎与 HTTP 服务
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	opts := []deepresearch.Option{
		deepresearch.WithLogger(logger),
	}
	// 配置了审计库时启用日志记录
	if cfg.Database.DSN != "" {
		opts = append(opts, deepresearch.WithJournal())
	}

	engine, err := deepresearch.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		telemetry: tel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(
		engine.Metrics().Registry(),
		promhttp.HandlerOpts{},
	))

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// Start 启动 HTTP 服务
func (s *Server) Start() error {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown 阻塞等待信号并优雅关闭
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := s.engine.Close(ctx); err != nil {
		s.logger.Error("engine shutdown failed", zap.Error(err))
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown failed", zap.Error(err))
	}
}

// handleHealth 健康检查:探测持久化后端与审计库
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if err := s.engine.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
