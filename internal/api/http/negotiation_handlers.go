package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appNegotiation "github.com/negotiation-hub/negotiation-hub/internal/application/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/sse"
)

type createNegotiationRequest struct {
	ProductID string           `json:"product_id" validate:"required,max=128"`
	SellerID  string           `json:"seller_id,omitempty" validate:"omitempty,max=128"`
	Price     *decimal.Decimal `json:"price" validate:"required"`
	Quantity  *int             `json:"quantity" validate:"required"`
	Message   *string          `json:"message,omitempty"`
}

type updateNegotiationRequest struct {
	Status   *string          `json:"status,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity *int             `json:"quantity,omitempty"`
	Message  *string          `json:"message,omitempty"`
}

// patch parses status the same way the list filter does, so case does not matter.
func (req updateNegotiationRequest) patch() (negotiation.Patch, error) {
	p := negotiation.Patch{Price: req.Price, Quantity: req.Quantity, Message: req.Message}
	if req.Status != nil {
		st, ok := negotiation.ParseStatus(*req.Status)
		if !ok {
			return p, errors.New("status must be one of PENDING COUNTER_OFFER ACCEPTED REJECTED ORDERED")
		}
		p.Status = &st
	}
	return p, nil
}

func (s *Server) createNegotiation(w http.ResponseWriter, r *http.Request) {
	var req createNegotiationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), err.Error())
		return
	}
	n, err := s.negotiationSvc.Create(contextFromRequest(r), appNegotiation.CreateInput{
		ProductID: req.ProductID,
		SellerID:  req.SellerID,
		Price:     *req.Price,
		Quantity:  *req.Quantity,
		Message:   req.Message,
		Actor:     actorFromContext(r.Context()),
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.view(n))
}

func (s *Server) listNegotiations(w http.ResponseWriter, r *http.Request) {
	var status *negotiation.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := negotiation.ParseStatus(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), "unknown status "+raw)
			return
		}
		status = &st
	}
	limit, offset := parseLimitOffset(r, 0, 500)
	items, err := s.negotiationSvc.List(contextFromRequest(r), appNegotiation.ListInput{
		Status: status,
		Limit:  limit,
		Offset: offset,
		Actor:  actorFromContext(r.Context()),
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	views := make([]negotiation.View, 0, len(items))
	for _, n := range items {
		views = append(views, s.view(n))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"negotiations": views})
}

func (s *Server) getActiveNegotiation(w http.ResponseWriter, r *http.Request) {
	n, err := s.negotiationSvc.GetActiveForProduct(contextFromRequest(r), r.URL.Query().Get("product_id"), actorFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if n == nil {
		respondJSON(w, http.StatusOK, nil)
		return
	}
	respondJSON(w, http.StatusOK, s.view(n))
}

func (s *Server) getNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), "invalid negotiationId")
		return
	}
	n, err := s.negotiationSvc.Get(contextFromRequest(r), id, actorFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(n))
}

func (s *Server) updateNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), "invalid negotiationId")
		return
	}
	var req updateNegotiationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), err.Error())
		return
	}
	n, err := s.negotiationSvc.Update(contextFromRequest(r), appNegotiation.UpdateInput{
		NegotiationID: id,
		Patch:         patch,
		Actor:         actorFromContext(r.Context()),
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(n))
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), "invalid negotiationId")
		return
	}
	entries, err := s.negotiationSvc.ListHistory(contextFromRequest(r), id, actorFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func (s *Server) acquireLock(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.negotiationSvc.AcquireLock)
}

func (s *Server) extendLock(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.negotiationSvc.ExtendLock)
}

func (s *Server) releaseLock(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.negotiationSvc.ForceReleaseLock)
}

func (s *Server) confirmOrder(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.negotiationSvc.ConfirmOrder)
}

type negotiationCommand func(ctx context.Context, negotiationID uuid.UUID, actor appNegotiation.Actor) (*negotiation.Negotiation, error)

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, fn negotiationCommand) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), "invalid negotiationId")
		return
	}
	n, err := fn(contextFromRequest(r), id, actorFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(n))
}

func (s *Server) sweepLocks(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 500, 5000)
	cleared, err := s.negotiationSvc.ProcessExpiredLocks(contextFromRequest(r), limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (s *Server) streamNegotiations(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		respondError(w, http.StatusBadRequest, string(negotiation.KindValidation), "client_id required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	party := authPartyFromContext(r.Context())
	client := sse.NewClient(clientID, party.PartyID)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case msg, open := <-client.MessageChan:
			if !open {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: " + msg.Event + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-keepalive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) view(n *negotiation.Negotiation) negotiation.View {
	return negotiation.NewView(n, s.negotiationSvc.Now())
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	e, ok := negotiation.AsError(err)
	if !ok {
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	body := map[string]interface{}{
		"error":   string(e.Kind),
		"message": e.Error(),
	}
	if e.Kind == negotiation.KindLockHeldByOther {
		body["lock_expires_in"] = e.RemainingSeconds
	}
	respondJSON(w, statusForKind(e.Kind), body)
}

func statusForKind(kind negotiation.ErrorKind) int {
	switch kind {
	case negotiation.KindNotFound:
		return http.StatusNotFound
	case negotiation.KindValidation:
		return http.StatusBadRequest
	case negotiation.KindNotParticipant:
		return http.StatusForbidden
	case negotiation.KindLockHeldByOther, negotiation.KindNotLockOwner, negotiation.KindTurnViolation,
		negotiation.KindNegotiationClosed, negotiation.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
