package runtime

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
)

// MetricFunc returns a map of metric name -> value.
// Names should be simple tokens using [a-zA-Z0-9_:] to ease exposition.
type MetricFunc func() map[string]float64

// WriteMetrics writes every collector in text exposition format, one
// "<collector>_<metric> <value>" line per metric, sorted by name.
func WriteMetrics(w io.Writer, collectors map[string]MetricFunc) {
	names := make([]string, 0, len(collectors))
	for name := range collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn := collectors[name]
		if fn == nil {
			continue
		}
		snapshot := fn()
		keys := make([]string, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s %g\n", sanitizeMetricToken(name+"_"+k), snapshot[k])
		}
	}
}

// MetricsHandler serves collectors under text exposition.
func MetricsHandler(collectors map[string]MetricFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		WriteMetrics(w, collectors)
	}
}

// StartMetricsServer serves h on addr (host:port).
// It returns the bound address (which may differ if port 0 was used), and a shutdown function.
func StartMetricsServer(addr string, h http.Handler) (string, func(ctx context.Context) error, error) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 3 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	bound := ln.Addr().String()
	go func() {
		_ = srv.Serve(ln)
	}()
	stop := func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}
	return bound, stop, nil
}

func sanitizeMetricToken(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == ':' {
			b[i] = c
		} else {
			b[i] = '_'
		}
	}
	if len(b) > 0 && b[0] >= '0' && b[0] <= '9' {
		return "_" + string(b)
	}
	out := string(b)
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return out
}
