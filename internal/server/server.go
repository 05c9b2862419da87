package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"messager/internal/broadcast"
	"messager/internal/storage"
)

// Server wires the HTTP surface: request handlers, middlewares, the
// websocket gateway and graceful shutdown of everything underneath.
type Server struct {
	logger     *zap.SugaredLogger
	httpServer *http.Server
	h          handler
	hub        *broadcast.Hub
	auth       Authenticator

	shutdownTimeout time.Duration
}

// NewServer returns a Server routing every endpoint onto the provided store
// and hub. Options tune the embedded http.Server.
func NewServer(logger *zap.SugaredLogger, store *storage.Store, hub *broadcast.Hub, auth Authenticator, notifier Notifier, images ImagePipeline, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		hub:    hub,
		auth:   auth,
		h: handler{
			logger:   logger,
			store:    store,
			hub:      hub,
			notifier: notifier,
			images:   images,
			parsers: parsers{
				createChannelPool: fastjson.ParserPool{},
				createMessagePool: fastjson.ParserPool{},
				addMemberPool:     fastjson.ParserPool{},
				createUserPool:    fastjson.ParserPool{},
				updateUserPool:    fastjson.ParserPool{},
			},
		},
	}

	authed := func(h http.HandlerFunc) http.Handler {
		return srv.authenticate(http.HandlerFunc(h))
	}
	authedJSON := func(h http.HandlerFunc) http.Handler {
		return srv.authenticate(enforceJSON(http.HandlerFunc(h)))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return srv.authenticate(requireAdmin(http.HandlerFunc(h)))
	}
	adminJSON := func(h http.HandlerFunc) http.Handler {
		return srv.authenticate(requireAdmin(enforceJSON(http.HandlerFunc(h))))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", srv.h.health)
	mux.HandleFunc("GET /ws", srv.handleSocket)

	mux.Handle("GET /channels", authed(srv.h.listChannels))
	mux.Handle("POST /channels", authedJSON(srv.h.createChannel))
	mux.Handle("DELETE /channels/{id}", authed(srv.h.deleteChannel))
	mux.Handle("POST /channels/{id}/members", authedJSON(srv.h.addMember))
	mux.Handle("DELETE /channels/{id}/members/{userID}", authed(srv.h.removeMember))
	mux.Handle("GET /channels/{id}/messages", authed(srv.h.listMessages))
	mux.Handle("POST /channels/{id}/messages", authedJSON(srv.h.createMessage))
	mux.Handle("DELETE /messages/{id}", authed(srv.h.deleteMessage))

	mux.Handle("POST /uploads", authed(srv.h.upload))
	mux.Handle("GET /files/", images.Handler())

	mux.Handle("GET /admin/users", admin(srv.h.listUsers))
	mux.Handle("POST /admin/users", adminJSON(srv.h.createUser))
	mux.Handle("PATCH /admin/users/{id}", adminJSON(srv.h.updateUser))
	mux.Handle("DELETE /admin/users/{id}", admin(srv.h.deleteUser))
	mux.Handle("DELETE /admin/channels/{id}", admin(srv.h.deleteChannel))

	cfg := &config{
		httpServer: &http.Server{
			Addr:    "0.0.0.0:9000",
			Handler: requestLog(mux, logger.Desugar()),
		},
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	srv.httpServer = cfg.httpServer
	srv.shutdownTimeout = cfg.shutdownTimeout

	return srv, nil
}

// Start calls ListenAndServe on the embedded http.Server and implements
// graceful shutdown via a goroutine waiting for signals: first the HTTP
// listener drains, then the hub closes its connections, then the store.
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("httpServer.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	s.logger.Info("Closing live connections")
	if err := s.hub.Shutdown(s.shutdownTimeout); err != nil {
		s.logger.Errorf("hub.Shutdown: %v", err)
	}

	s.logger.Info("Closing store")
	s.h.store.Close()
	s.logger.Info("Store is closed")

	return nil
}
