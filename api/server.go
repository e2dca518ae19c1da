package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VanDung-dev/HieraChain-Relay/arrow"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/data"
)

// ArrowStreamContentType is the media type of an Arrow IPC stream.
const ArrowStreamContentType = "application/vnd.apache.arrow.stream"

// MetricsServer serves Prometheus metrics and the hub's status endpoints.
type MetricsServer struct {
	log    *logger.L
	mux    *http.ServeMux
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string, metrics *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		log: logger.New("metrics"),
		mux: mux,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// HandleStatus serves the value returned by status as JSON on /status.
func (s *MetricsServer) HandleStatus(status func() interface{}) {
	s.mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			s.log.Warnf("status encode: %v", err)
		}
	})
}

// HandleJournal serves the resolution journal on /journal, as an Arrow IPC
// stream by default or as JSON with ?format=json.
func (s *MetricsServer) HandleJournal(journal *data.Journal) {
	converter := data.NewConverter()
	writer := arrow.NewIPCWriter()

	s.mux.HandleFunc("/journal", func(w http.ResponseWriter, r *http.Request) {
		record := converter.ResolutionsToArrowBatch(journal.Snapshot())
		defer record.Release()

		if r.URL.Query().Get("format") == "json" {
			out, err := converter.ArrowBatchToJSON(record)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(out)
			return
		}

		buf, err := writer.SerializeToIPC(record)
		if err != nil {
			s.log.Errorf("journal serialize: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ArrowStreamContentType)
		w.Write(buf)
	})
}

// Handler returns the HTTP handler with every registered route.
func (s *MetricsServer) Handler() http.Handler {
	return s.mux
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("metrics server: %v", err)
		}
	}()
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
