package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"task-manager/pkg/config"
)

// Options 服务器参数
type Options struct {
	Listen config.ListenConfig
	// HTTPHandler 处理非 gRPC 请求
	HTTPHandler http.Handler
	// RegisterGRPC 在启动前注册 gRPC 服务
	RegisterGRPC func(*grpc.Server)
	GRPCOptions  []grpc.ServerOption
}

// Server 在同一端口上提供 HTTP 与 gRPC。
// 明文模式下由 cmux 按协议分流；TLS 模式下由 MixedHandler 按 content-type 分流。
type Server struct {
	config config.ListenConfig
	logger zerolog.Logger

	listener   net.Listener
	mux        cmux.CMux
	grpcServer *grpc.Server
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New 创建服务器实例并开始监听
func New(opts Options, logger zerolog.Logger) (*Server, error) {
	// 添加服务器选项
	grpcOpts := append([]grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
	}, opts.GRPCOptions...)

	grpcServer := grpc.NewServer(grpcOpts...)
	if opts.RegisterGRPC != nil {
		opts.RegisterGRPC(grpcServer)
	}
	reflection.Register(grpcServer)

	httpServer := &http.Server{
		Handler:           opts.HTTPHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 创建基础TCP监听器
	listener, err := net.Listen("tcp", opts.Listen.Address())
	if err != nil {
		return nil, fmt.Errorf("creating listener: %w", err)
	}

	s := &Server{
		config:     opts.Listen,
		logger:     logger,
		listener:   listener,
		grpcServer: grpcServer,
		httpServer: httpServer,
	}

	if opts.Listen.TLS.Enabled {
		httpServer.Handler = NewMixedHandler(grpcServer, opts.HTTPHandler)
	} else {
		s.mux = cmux.New(listener)
	}

	return s, nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start 启动服务器
func (s *Server) Start() error {
	if s.config.TLS.Enabled {
		s.serve("HTTPS", func() error {
			return s.httpServer.ServeTLS(s.listener, s.config.TLS.Cert, s.config.TLS.Key)
		})
	} else {
		// 设置 gRPC 匹配器
		grpcL := s.mux.MatchWithWriters(
			cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"),
		)
		// 设置 HTTP 匹配器
		httpL := s.mux.Match(cmux.HTTP1Fast())

		s.serve("gRPC", func() error { return s.grpcServer.Serve(grpcL) })
		s.serve("HTTP", func() error { return s.httpServer.Serve(httpL) })
		s.serve("cmux", s.mux.Serve)
	}

	s.logger.Info().
		Str("address", s.listener.Addr().String()).
		Bool("tls", s.config.TLS.Enabled).
		Msg("Server started")

	return nil
}

func (s *Server) serve(name string, run func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(); err != nil && !isClosedError(err) {
			s.logger.Error().Err(err).Msgf("%s server error", name)
		}
	}()
}

func isClosedError(err error) bool {
	return errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, cmux.ErrListenerClosed)
}

// Stop 停止服务器，ctx 限定 HTTP 优雅退出的等待时间
func (s *Server) Stop(ctx context.Context) error {
	// 优雅关闭 HTTP 服务器
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	if s.config.TLS.Enabled {
		// ServeHTTP 模式下 GracefulStop 不管理连接
		s.grpcServer.Stop()
	} else {
		s.grpcServer.GracefulStop()
	}

	// 关闭监听器
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Error().Err(err).Msg("Error closing listener")
	}

	// 等待所有服务停止
	s.wg.Wait()

	s.logger.Info().Msg("Server stopped")
	return nil
}
