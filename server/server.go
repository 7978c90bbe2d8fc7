// Package server exposes a controller over HTTP for user interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"

	"github.com/luma/tvremote/controller"
)

type Options struct {
	Host string
	Port int

	// Reuseport lets several processes share the listening port.
	Reuseport bool

	// DebugHTTP puts gin in debug mode.
	DebugHTTP bool

	Log *zap.Logger
}

type Server struct {
	ctrl   *controller.Controller
	opts   Options
	log    *zap.Logger
	router *gin.Engine
	http   *http.Server

	mu       sync.Mutex
	listener net.Listener

	// streams ends event streams on shutdown
	streams     context.Context
	stopStreams context.CancelFunc
}

func New(ctrl *controller.Controller, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	s := &Server{
		ctrl: ctrl,
		opts: opts,
		log:  opts.Log,
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())

	s.router = setupRouter(opts.DebugHTTP, opts.Log)
	s.routes()
	s.http = &http.Server{Handler: s.router}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	var (
		listener net.Listener
		err      error
	)

	if s.opts.Reuseport {
		listener, err = reuseport.Listen("tcp", addr)
	} else {
		listener, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return fmt.Errorf("Failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Listening", zap.String("addr", listener.Addr().String()))

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Http server errored", zap.Error(err))
		}
	}()

	return nil
}

// Addr is the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Shutdown waits for in flight requests until ctx ends. Event streams are
// closed straight away.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopStreams()
	s.http.SetKeepAlivesEnabled(false)
	return s.http.Shutdown(ctx)
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, in UTC.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
