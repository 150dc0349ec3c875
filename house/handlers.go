package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/core"
	"github.com/cloudx-io/auctionhouse/feed"
	"github.com/cloudx-io/auctionhouse/store"
)

const maxRequestBytes = 1 << 20

// Handler exposes the AuctionHouse over HTTP
type Handler struct {
	house *AuctionHouse
	feed  *feed.Handler
}

// NewHandler creates the HTTP handler. feedHandler may be nil when the live
// feed is disabled.
func NewHandler(house *AuctionHouse, feedHandler *feed.Handler) *Handler {
	return &Handler{house: house, feed: feedHandler}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(maxWorkers int) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/keys", h.GetKeys).Methods(http.MethodGet)
	api.HandleFunc("/items", h.CreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", h.DeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/bids", h.PlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/results", h.GetResults).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/certificate", h.GetCertificate).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/announce", h.Announce).Methods(http.MethodPost)
	api.Use(workerSlotMiddleware(maxWorkers))

	if h.feed != nil {
		h.feed.RegisterRoutes(router)
	}

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auctionhouse",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) GetKeys(w http.ResponseWriter, _ *http.Request) {
	keys, err := h.house.Keys()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.ItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.house.CreateItem(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.house.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.ItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.house.UpdateItem(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// DeleteItem takes the auctioneer from the auctioneer_id query parameter
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	auctioneerID := r.URL.Query().Get("auctioneer_id")
	if auctioneerID == "" {
		respondError(w, http.StatusBadRequest, "auctioneer_id is required")
		return
	}

	if err := h.house.DeleteItem(r.Context(), mux.Vars(r)["id"], auctioneerID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlaceBid returns 201 for accepted bids and 200 with the rejection reason otherwise
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.PlaceBidRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.house.PlaceBid(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	statusCode := http.StatusOK
	if resp.Accepted {
		statusCode = http.StatusCreated
	}
	respondJSON(w, statusCode, resp)
}

func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.house.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.house.Certificate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cert)
}

func (h *Handler) Announce(w http.ResponseWriter, r *http.Request) {
	resp, err := h.house.Announce(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, core.ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrItemLocked), errors.Is(err, store.ErrItemHasBids),
		errors.Is(err, store.ErrItemExists), errors.Is(err, ErrResultsPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	statusCode := statusFor(err)
	if statusCode == http.StatusInternalServerError {
		log.Printf("ERROR: Request failed: %v", err)
		respondError(w, statusCode, "internal error")
		return
	}
	respondError(w, statusCode, err.Error())
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// workerSlotMiddleware caps in-flight API requests. When every slot is taken
// the request is rejected immediately instead of queueing.
func workerSlotMiddleware(maxWorkers int) mux.MiddlewareFunc {
	semaphore := make(chan struct{}, maxWorkers)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }() // Release worker slot
				next.ServeHTTP(w, r)
			default:
				log.Printf("INFO: No workers available, rejecting %s %s (pool full)", r.Method, r.URL.Path)
				respondError(w, http.StatusServiceUnavailable, "server busy, retry later")
			}
		})
	}
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("INFO: %s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
