package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gatewall/relay/internal/embed"
	"github.com/gatewall/relay/internal/gate"
	"github.com/gatewall/relay/internal/metrics"
)

// maxBodyBytes bounds the request body read. Valid payloads are a few KB.
const maxBodyBytes = 64 * 1024

// Throttler is the optional pre-engine request ceiling.
type Throttler interface {
	Allow(ctx context.Context, address string) bool
}

// handleInbound is the single ingestion endpoint. The ban check runs
// before the method and content-type preconditions so a banned address
// gets the same answer no matter how it knocks.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	address := clientAddress(r)

	// Store operations run on a context that survives a client
	// disconnect: a half-applied ban or cap is worse than answering a
	// caller who already hung up.
	ctx := context.WithoutCancel(r.Context())

	banned, _, err := s.gate.IsBanned(ctx, address)
	if err != nil {
		log.Printf("[server] ban check failed for %s: %v", address, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if banned {
		metrics.RequestsTotal.WithLabelValues(gate.OutcomeBanned.String()).Inc()
		http.Error(w, "address is banned", http.StatusForbidden)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "use POST method", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	if s.throttle != nil && !s.throttle.Allow(ctx, address) {
		metrics.Throttled.Inc()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	var payload embed.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	res, err := s.gate.Process(ctx, address, payload)
	if err != nil {
		log.Printf("[server] processing failed for %s: %v", address, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeResult(w, res)
}

// writeResult maps a terminal outcome to its HTTP response.
func writeResult(w http.ResponseWriter, res gate.Result) {
	switch res.Outcome {
	case gate.OutcomeAccepted:
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	case gate.OutcomeBanned:
		http.Error(w, "address is banned", http.StatusForbidden)
	case gate.OutcomeMalformed:
		http.Error(w, res.Violation.String(), http.StatusBadRequest)
	case gate.OutcomeDuplicateBanned:
		http.Error(w, "address banned for repeated identical messages", http.StatusForbidden)
	case gate.OutcomeDeliveryFailed:
		// The message is durably recorded; only the forward failed.
		http.Error(w, "downstream delivery failed", http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// clientAddress resolves the originating address: the CDN header first,
// then the first X-Forwarded-For hop, then the socket peer.
func clientAddress(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
