package netstack

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestServerTLS_SelfSigned(t *testing.T) {
	cfg, err := ServerTLS("", "", "127.0.0.1")
	if err != nil {
		t.Fatalf("ServerTLS: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 || len(cfg.Certificates) != 1 {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if _, err := ServerTLS("missing.pem", "missing.key", ""); err == nil {
		t.Fatal("expected error for missing files")
	}
}

func TestHTTP3_Loopback(t *testing.T) {
	srvTLS, err := GenerateSelfSignedTLS([]string{"127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("pong")) })

	s := NewHTTP3Server("127.0.0.1:0", srvTLS, mux)
	addr, err := s.Start()
	if err != nil {
		t.Skip("http3 not supported here:", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cli := HTTP3Client(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS13}, 2*time.Second)
	defer ShutdownHTTP3(cli)
	resp, err := cli.Get("https://" + addr + "/ping")
	if err != nil {
		cancel()
		<-done
		t.Skip("http3 dial failed:", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "pong" {
		t.Fatalf("unexpected: %q", string(b))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
