// Package netstack serves the runtime's observability endpoints over QUIC.
package netstack

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	http3 "github.com/quic-go/quic-go/http3"
)

// HTTP3Server wraps the http3.Server lifecycle.
type HTTP3Server struct {
	srv   *http3.Server
	pc    net.PacketConn
	addr  string
	done  chan struct{}
	close func() error
}

// NewHTTP3Server creates a server bound to addr with given TLS config and handler.
func NewHTTP3Server(addr string, tlsCfg *tls.Config, h http.Handler) *HTTP3Server {
	s := &http3.Server{Addr: addr, TLSConfig: http3.ConfigureTLSConfig(tlsCfg), Handler: h}
	return &HTTP3Server{srv: s, addr: addr}
}

// Start begins serving on a UDP socket. With addr ending in ":0" an
// ephemeral port is chosen; the bound address is returned.
func (s *HTTP3Server) Start() (string, error) {
	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return "", err
	}
	s.pc = pc
	s.done = make(chan struct{})
	go func() {
		_ = s.srv.Serve(pc)
		close(s.done)
	}()
	s.close = func() error {
		_ = s.srv.Close()
		_ = pc.Close()
		select {
		case <-s.done:
		case <-time.After(time.Second):
		}
		return nil
	}
	return pc.LocalAddr().String(), nil
}

// Run serves until ctx is done.
func (s *HTTP3Server) Run(ctx context.Context) error {
	if s.close == nil {
		if _, err := s.Start(); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return s.Stop()
}

// Stop stops the server.
func (s *HTTP3Server) Stop() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}

// HTTP3Client returns an http.Client using HTTP/3 round tripper with given TLS config.
func HTTP3Client(tlsCfg *tls.Config, timeout time.Duration) *http.Client {
	tr := &http3.Transport{TLSClientConfig: tlsCfg}
	return &http.Client{Transport: tr, Timeout: timeout}
}

// ShutdownHTTP3 closes the round tripper of c if it is an HTTP/3 one.
func ShutdownHTTP3(c *http.Client) {
	if tr, ok := c.Transport.(*http3.Transport); ok {
		_ = tr.Close()
	}
}
