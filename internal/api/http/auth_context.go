package httpapi

import (
	"context"

	appAuth "github.com/negotiation-hub/negotiation-hub/internal/application/auth"
	appNegotiation "github.com/negotiation-hub/negotiation-hub/internal/application/negotiation"
)

type authContextKey string

const authPartyKey authContextKey = "authParty"

// AuthParty represents the authenticated caller in context.
type AuthParty struct {
	PartyID string
	Role    appAuth.Role
}

// Actor converts the caller into the identity the negotiation service expects.
func (p AuthParty) Actor() appNegotiation.Actor {
	return appNegotiation.Actor{
		PartyID:   p.PartyID,
		IsAdmin:   p.Role == appAuth.RoleAdmin,
		IsService: p.Role == appAuth.RoleService,
	}
}

func withAuthParty(ctx context.Context, p *AuthParty) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, authPartyKey, p)
}

func authPartyFromContext(ctx context.Context) *AuthParty {
	val := ctx.Value(authPartyKey)
	if v, ok := val.(*AuthParty); ok {
		return v
	}
	return nil
}

func actorFromContext(ctx context.Context) appNegotiation.Actor {
	if p := authPartyFromContext(ctx); p != nil {
		return p.Actor()
	}
	return appNegotiation.Actor{}
}
