package observability

import (
	"encoding/json"
	"net/http"
)

// Handler serves the metrics snapshot as JSON. With ?saga=<name> only that
// saga's counters are returned.
func Handler(metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := metrics.Snapshot()
		var body any = snap
		if name := r.URL.Query().Get("saga"); name != "" {
			sagaSnap, ok := snap.Sagas[name]
			if !ok {
				http.Error(w, "unknown saga", http.StatusNotFound)
				return
			}
			body = sagaSnap
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(body)
	})
}
