// Package castauth provides a pluggable web server for Sign In With Farcaster
// authentication. It bundles a plugin registry, configuration loading, JSON
// request handling, and the supporting storage and eventing infrastructure
// that the auth plugins build on.
//
// Usage:
//
//	s := castauth.New(
//	    castauth.WithPlugin(storage.Plugin(memorystore.New())),
//	    castauth.WithPlugin(auth.Plugin()),
//	    castauth.WithPlugin(farcaster.Plugin()),
//	)
//	s.Start()
package castauth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/logging"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server handles plain HTTP and JSON API requests, and owns the plugin
// registry for the application.
type Server struct {
	// Hostname or IP to bind to.
	host string

	// Port to listen on.
	port int

	// Location of certificate file, if TLS to be used.
	certFile string

	// Location of key file, if TLS to be used.
	keyFile string

	// Context that is propagated to request handlers.
	baseContext context.Context

	// Handles the original request.
	httpServer *http.Server

	// Routes regular HTTP requests.
	httpMux *http.ServeMux

	// Plugins registered with the server.
	plugins *Registry
}

// Plugins returns the server's plugin registry.
func (s *Server) Plugins() *Registry {
	return s.plugins
}

// Start serving requests. Plugins are initialized first, then the server
// blocks until Shutdown is called or a termination signal is received.
func (s *Server) Start() error {
	if err := s.plugins.Init(s.baseContext); err != nil {
		return errors.Wrap(err, 0)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr: addr,
		BaseContext: func(listener net.Listener) context.Context {
			return s.baseContext
		},
	}

	var done = make(chan struct{})
	var err error

	go func() {
		var gracefulStop = make(chan os.Signal, 1)
		signal.Notify(gracefulStop, syscall.SIGTERM)
		signal.Notify(gracefulStop, syscall.SIGINT)
		sig := <-gracefulStop
		logging.Infof(s.baseContext, "👋 Graceful shutdown triggered... (sig %+v)\n", sig)
		s.Shutdown()
		close(done)
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	defer ln.Close()

	handler := gziphandler.GzipHandler(s.httpMux)

	if s.certFile != "" {
		s.httpServer.Handler = handler
		s.httpServer.TLSConfig = safeTLSConfig()
		logging.Infof(s.baseContext, "🚀  Listening for traffic on https://%s\n", addr)
		err = s.httpServer.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		s.httpServer.Handler = h2c.NewHandler(handler, &http2.Server{})
		logging.Infof(s.baseContext, "🚀  Listening for traffic on http://%s\n", addr)
		err = s.httpServer.Serve(ln)
	}

	if !errors.Is(err, http.ErrServerClosed) {
		return err // The server wasn't shutdown gracefully.
	}

	<-done
	return nil
}

// Shutdown gracefully shuts down the server with a 2s timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(s.baseContext, time.Second*2)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		logging.Errorw(s.baseContext, "Shutdown error", "error", err)
	} else {
		logging.Info(s.baseContext, "👍 Connections drained")
	}
	s.httpServer = nil
	return err
}

// TLS1.2 min and support for HTTP2.
func safeTLSConfig() *tls.Config {
	return &tls.Config{
		NextProtos: []string{"h2"},
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}
}
