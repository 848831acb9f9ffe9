package sse

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
)

// NegotiationPublisher pushes negotiation views to both parties' streams.
type NegotiationPublisher struct {
	hub    *Hub
	now    func() time.Time
	logger zerolog.Logger
}

func NewNegotiationPublisher(hub *Hub, now func() time.Time, logger zerolog.Logger) *NegotiationPublisher {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &NegotiationPublisher{
		hub:    hub,
		now:    now,
		logger: logger.With().Str("service", "sse").Logger(),
	}
}

func (p *NegotiationPublisher) PublishNegotiation(event string, n *negotiation.Negotiation) {
	data, err := json.Marshal(negotiation.NewView(n, p.now()))
	if err != nil {
		p.logger.Error().Err(err).Str("negotiation_id", n.NegotiationID.String()).Msg("encode event")
		return
	}
	msg := NewMessage(event, data)
	for _, party := range n.Parties() {
		p.hub.BroadcastToParty(party, msg)
	}
}
