package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/ingest"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
)

const (
	// maxWebhookBody bounds the notification payload.
	maxWebhookBody   = 1 << 20
	defaultListLimit = 100
)

// storageEvent is a database-change notification for the storage objects table.
type storageEvent struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Schema    string         `json:"schema"`
	Record    *storageObject `json:"record"`
	OldRecord *storageObject `json:"old_record"`
}

type storageObject struct {
	ID       string `json:"id"`
	BucketID string `json:"bucket_id"`
	Name     string `json:"name"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	*ingest.Summary
}

func (s *Server) writeToDB(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		metrics.ObserveWebhook("unauthorized")
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var event storageEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&event); err != nil {
		metrics.ObserveWebhook("invalid")
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if reason := s.ignoreReason(event); reason != "" {
		metrics.ObserveWebhook("ignored")
		s.logger.Debug("webhook ignored", zap.String("type", event.Type), zap.String("reason", reason))
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Message: reason})
		return
	}

	if s.ingester == nil {
		metrics.ObserveWebhook("failed")
		s.writeError(w, http.StatusServiceUnavailable, "ingest is not configured")
		return
	}
	summary, err := s.ingester.Ingest(r.Context(), event.Record.Name)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedObject):
		metrics.ObserveWebhook("ignored")
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Message: err.Error()})
	case err != nil:
		metrics.ObserveWebhook("failed")
		s.logger.Error("ingest failed", zap.String("object", event.Record.Name), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, extract.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
	default:
		metrics.ObserveWebhook("success")
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Summary: &summary})
	}
}

// authorized compares the bearer token in constant time.
func (s *Server) authorized(r *http.Request) bool {
	if s.webhook.Secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.webhook.Secret)) == 1
}

func (s *Server) ignoreReason(event storageEvent) string {
	switch strings.ToUpper(event.Type) {
	case "INSERT", "UPDATE":
	default:
		return fmt.Sprintf("event type %q is not processed", event.Type)
	}
	if event.Record == nil || event.Record.Name == "" {
		return "event has no object name"
	}
	if event.Record.BucketID != s.webhook.Bucket {
		return fmt.Sprintf("bucket %q is not watched", event.Record.BucketID)
	}
	return ""
}

func (s *Server) listProfessors(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		s.writeError(w, http.StatusServiceUnavailable, "record store is not configured")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	profs, err := s.records.ListProfessors(r.Context(), limit)
	if err != nil {
		s.logger.Error("list professors failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read professors")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(profs), "professors": profs})
}
