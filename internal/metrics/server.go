package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Status is the /status document
type Status struct {
	Ready           bool       `json:"ready"`
	ActiveBid       *BidStatus `json:"activeBid"`
	WatchedAccounts int        `json:"watchedAccounts"`
	WatchListBlock  uint64     `json:"watchListBlock"`
	AuctionEvents   int        `json:"auctionEvents"`
	AuctionBlock    uint64     `json:"auctionBlock"`
}

type BidStatus struct {
	ID         string    `json:"id"`
	Amount     string    `json:"amount"`
	Borrower   string    `json:"borrower"`
	Expiration time.Time `json:"expiration"`
}

// StatusFunc reports the current status
type StatusFunc func() Status

// Server serves /metrics and /status
type Server struct {
	srv *http.Server
}

func NewServer(addr string, gatherer prometheus.Gatherer, status StatusFunc) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(gatherer, status),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// NewRouter builds the ops routes
func NewRouter(gatherer prometheus.Gatherer, status StatusFunc) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		data, err := json.MarshalIndent(status(), "", "  ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}).Methods(http.MethodGet)
	return router
}

// Start listens in the background
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Ops server failed")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Ops server shutdown")
	}
}
