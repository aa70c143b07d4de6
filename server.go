package http2

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/acme/autocert"
)

// ServerConfig bundles the Config this package understands with the things
// only a real listening server needs: the handler, a logger, and whether to
// also accept h2c (cleartext, prior-knowledge) connections.
type ServerConfig struct {
	Config

	Handler RequestHandler
	Logger  Logger

	// H2C, when true, makes Server.Serve accept plaintext connections that
	// open with the HTTP/2 client preface directly, without a TLS/ALPN
	// handshake (§3.4 of RFC 7540's prior-knowledge mode).
	H2C bool
}

// Server accepts connections and runs the HTTP/2 connection core on each.
type Server struct {
	cfg ServerConfig
}

// NewServer returns a Server ready to Serve or to be attached to a
// *fasthttp.Server via ConfigureServer.
func NewServer(cfg ServerConfig) *Server {
	cfg.fillDefaults()
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger
	}
	return &Server{cfg: cfg}
}

// ConfigureServer registers this package as the h2 ALPN protocol handler on
// an existing *fasthttp.Server, the way the host would wire HTTP/2 support
// onto a server it otherwise runs over HTTP/1.1. It also borrows the
// fasthttp.Server's handler when the ServerConfig left it unset (timeouts
// come from the ServerConfig alone, not from the fasthttp.Server), and
// registers the h2c upgrade token when H2C is enabled.
func ConfigureServer(s *fasthttp.Server, cfg ServerConfig) (*Server, error) {
	if cfg.Handler == nil {
		cfg.Handler = s.Handler
	}
	if cfg.Handler == nil {
		return nil, errNoHandler
	}

	h2s := NewServer(cfg)

	s.NextProto(H2TLSProto, h2s.serveConn)
	if h2s.cfg.H2C {
		s.NextProto(H2Clean, h2s.serveConn)
	}

	return h2s, nil
}

var errNoHandler = errors.New("http2: no request handler configured")

// ListenAndServeTLS loads certFile/keyFile, advertises h2 (and h2c, if
// enabled) over ALPN, and serves forever.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}

	nextProtos := []string{H2TLSProto}
	if s.cfg.H2C {
		nextProtos = append(nextProtos, H2Clean)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   nextProtos,
		MinVersion:   tls.VersionTLS12,
	}

	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// ListenAndServeAutocert serves on :443 using Let's Encrypt-issued
// certificates for the given hostnames, obtained and renewed automatically
// via ACME and cached under cacheDir.
func (s *Server) ListenAndServeAutocert(cacheDir string, hostnames ...string) error {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(hostnames...),
		Cache:      autocert.DirCache(cacheDir),
	}

	tlsConfig := m.TLSConfig()
	tlsConfig.NextProtos = append([]string{H2TLSProto}, tlsConfig.NextProtos...)

	ln, err := tls.Listen("tcp", ":443", tlsConfig)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// Serve accepts connections from ln until it returns an error. TLS
// connections are handshaken and dispatched by their negotiated ALPN
// protocol; a plaintext connection is served as h2c when H2C is enabled,
// and rejected otherwise.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}

		go s.handleAccepted(c)
	}
}

type connTLSer interface {
	Handshake() error
	ConnectionState() tls.ConnectionState
}

func (s *Server) handleAccepted(c net.Conn) {
	if cTLS, ok := c.(connTLSer); ok {
		if err := cTLS.Handshake(); err != nil {
			s.cfg.Logger.Printf("http2: TLS handshake failed: %s", err)
			c.Close()
			return
		}

		switch cTLS.ConnectionState().NegotiatedProtocol {
		case H2TLSProto:
		case H2Clean:
			if !s.cfg.H2C {
				c.Close()
				return
			}
		default:
			c.Close()
			return
		}
	} else if !s.cfg.H2C {
		c.Close()
		return
	}

	s.serveConn(c)
}

// serveConn runs one connection to completion. It matches fasthttp's
// NextProto signature, so it can be registered directly.
func (s *Server) serveConn(c net.Conn) error {
	defer c.Close()

	conn := NewConn(c, s.cfg.Handler, s.cfg.Config, s.cfg.Logger)
	return conn.Serve()
}
