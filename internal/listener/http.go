package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strayhaven/edge/config"
)

// HTTPListener owns one http.Server bound to one address.
type HTTPListener struct {
	name    string
	address string
	server  *http.Server
	tlsCfg  *tls.Config

	mu sync.Mutex
	ln net.Listener
}

// HTTPListenerConfig holds configuration for creating an HTTP listener
type HTTPListenerConfig struct {
	Name              string
	Address           string
	Handler           http.Handler
	TLS               config.TLSConfig
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ReadHeaderTimeout time.Duration
	Logger            *zap.Logger
}

// NewHTTPListener creates an HTTP listener. Zero timeouts take the
// defaults below; TLS certificates are loaded eagerly.
func NewHTTPListener(cfg HTTPListenerConfig) (*HTTPListener, error) {
	h := &HTTPListener{
		name:    cfg.Name,
		address: cfg.Address,
	}

	if cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		h.tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
			NextProtos:   []string{"h2", "http/1.1"},
		}
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}
	maxHeaderBytes := cfg.MaxHeaderBytes
	if maxHeaderBytes == 0 {
		maxHeaderBytes = 1 << 20 // 1MB
	}
	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           cfg.Handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		TLSConfig:         h.tlsCfg,
		ErrorLog:          zap.NewStdLog(logger.Named(cfg.Name)),
	}

	return h, nil
}

// Name returns the listener name used in logs
func (h *HTTPListener) Name() string {
	return h.name
}

// TLS reports whether the listener terminates TLS.
func (h *HTTPListener) TLS() bool {
	return h.tlsCfg != nil
}

// Listen binds the address. It is idempotent.
func (h *HTTPListener) Listen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", h.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.address, err)
	}
	if h.tlsCfg != nil {
		ln = tls.NewListener(ln, h.tlsCfg)
	}
	h.ln = ln
	return nil
}

// Addr returns the bound address once listening, else the configured one.
func (h *HTTPListener) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln != nil {
		return h.ln.Addr().String()
	}
	return h.address
}

// Serve accepts connections until Shutdown. It binds first if Listen was
// not called and returns nil after a graceful shutdown.
func (h *HTTPListener) Serve() error {
	if err := h.Listen(); err != nil {
		return err
	}
	h.mu.Lock()
	ln := h.ln
	h.mu.Unlock()

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s listener: %w", h.name, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (h *HTTPListener) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}
