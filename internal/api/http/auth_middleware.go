package httpapi

import (
	"net/http"
	"strings"

	appAuth "github.com/negotiation-hub/negotiation-hub/internal/application/auth"
)

const (
	headerPartyID   = "X-Party-ID"
	headerPartyRole = "X-Party-Role"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trustedHeader {
			if partyID := strings.TrimSpace(r.Header.Get(headerPartyID)); partyID != "" {
				ctx := withAuthParty(r.Context(), &AuthParty{
					PartyID: partyID,
					Role:    appAuth.ParseRole(r.Header.Get(headerPartyRole)),
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		id, err := s.authSvc.Authenticate(r.Context(), extractToken(r))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		ctx := withAuthParty(r.Context(), &AuthParty{PartyID: id.PartyID, Role: id.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[strings.ToUpper(r)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			party := authPartyFromContext(r.Context())
			if party == nil {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
				return
			}
			if _, ok := allowed[strings.ToUpper(string(party.Role))]; !ok {
				respondError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
