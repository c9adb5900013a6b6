package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/offline"
)

type submitResponse struct {
	Status    string             `json:"status"`
	Sale      *domain.Sale       `json:"sale,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
	EntryID   string             `json:"entry_id,omitempty"`
	Totals    *domain.SaleTotals `json:"totals,omitempty"`
}

type queueResponse struct {
	Pending         []offline.Entry `json:"pending"`
	Abandoned       []offline.Entry `json:"abandoned"`
	PricesFetchedAt *time.Time      `json:"prices_fetched_at,omitempty"`
}

// intake is the loopback API the register front end posts finished sales
// to. A sale is committed online when possible and queued otherwise; either
// way the register can clear the cart once it gets a 2xx.
type intake struct {
	registerID string
	submitter  *offline.Submitter
	queue      *offline.Queue
	prices     *offline.PriceList
}

func (in *intake) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sales", in.handleSubmit)
	mux.HandleFunc("/queue", in.handleQueue)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (in *intake) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req domain.CommitSaleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale payload"})
		return
	}
	if req.RegisterID == "" {
		req.RegisterID = in.registerID
	}
	if req.RegisterID != in.registerID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sale belongs to another register"})
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	res, err := in.submitter.Submit(r.Context(), req)
	if err != nil {
		status, body := submitError(err)
		writeJSON(w, status, body)
		return
	}
	if res.Queued {
		writeJSON(w, http.StatusAccepted, submitResponse{Status: "queued", EntryID: res.Entry.ID, Totals: &res.Entry.Totals})
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, submitResponse{Status: "committed", Sale: res.Sale, Duplicate: res.Duplicate})
}

func (in *intake) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	pending, err := in.queue.Pending(r.Context())
	if err != nil {
		log.Printf("[intake] ERROR: list pending: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "queue unavailable"})
		return
	}
	dead, err := in.queue.DeadLetters(r.Context())
	if err != nil {
		log.Printf("[intake] ERROR: list abandoned: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "queue unavailable"})
		return
	}
	resp := queueResponse{Pending: pending, Abandoned: dead}
	if at := in.prices.FetchedAt(); !at.IsZero() {
		resp.PricesFetchedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// submitError keeps the server's answer for a rejected sale and maps local
// refusals to the same codes the server would use.
func submitError(err error) (int, map[string]any) {
	body := map[string]any{"error": err.Error()}
	var rejected *offline.RejectedError
	var insufficient *domain.InsufficientPaymentError
	switch {
	case errors.As(err, &rejected):
		body["error"] = rejected.Reason
		return rejected.StatusCode, body
	case errors.As(err, &insufficient):
		body["total_cents"] = insufficient.Total
		body["paid_cents"] = insufficient.Paid
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, offline.ErrUnpriced), errors.Is(err, domain.ErrUnexpectedPayment):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, body
	default:
		log.Printf("[intake] ERROR: submit failed: %v", err)
		return http.StatusInternalServerError, map[string]any{"error": "sale could not be stored"}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
