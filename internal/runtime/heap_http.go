package runtime

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

var cborMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// NewHeapMux returns the observability handler of rt:
//
//	GET  /metrics          -> text exposition of the heap and extra collectors
//	GET  /heap/stats       -> JSON HeapStatus
//	GET  /heap/stats.cbor  -> canonical CBOR HeapStatus
//	GET  /heap/types       -> JSON per-type breakdown; query n=<count> limits it
//	POST /heap/collect     -> schedules a collection pass at the next safe point
func NewHeapMux(rt *Runtime, extra map[string]MetricFunc) *http.ServeMux {
	collectors := map[string]MetricFunc{"orizon_heap": rt.Metrics}
	for name, fn := range extra {
		collectors[name] = fn
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", MetricsHandler(collectors))

	mux.HandleFunc("GET /heap/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rt.Status())
	})

	mux.HandleFunc("GET /heap/stats.cbor", func(w http.ResponseWriter, r *http.Request) {
		data, err := cborMode.Marshal(rt.Status())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/cbor")
		_, _ = w.Write(data)
	})

	mux.HandleFunc("GET /heap/types", func(w http.ResponseWriter, r *http.Request) {
		list := rt.Tracker().TypeStats()
		if nStr := r.URL.Query().Get("n"); nStr != "" {
			n, err := strconv.Atoi(nStr)
			if err != nil || n < 0 {
				http.Error(w, "invalid n", http.StatusBadRequest)
				return
			}
			if n < len(list) {
				list = list[:n]
			}
		}
		writeJSON(w, list)
	})

	mux.HandleFunc("POST /heap/collect", func(w http.ResponseWriter, r *http.Request) {
		rt.RequestCollection()
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
