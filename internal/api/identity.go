// identity.go - Caller identity and scope resolution
package api

import (
	"context"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/session"
)

// Request headers and query parameters carrying the caller's identity.
// Query parameters are accepted for websocket upgrades, which cannot set headers.
const (
	HeaderUserID      = "X-User-Id"
	HeaderDisplayName = "X-Display-Name"

	queryToken = "token"
	queryUID   = "uid"
	queryName  = "name"
	queryRoom  = "room"

	identityKey = "identity"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// IdentityMiddleware resolves the caller for every request. With a verifier,
// only a valid bearer token establishes a uid and an invalid one is rejected;
// without one, the X-User-Id header is trusted. Requests without identity
// continue anonymously and are refused by the write gates.
func IdentityMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := models.Identity{
				Name: firstNonEmpty(req.Header.Get(HeaderDisplayName), c.QueryParam(queryName)),
			}

			if verifier != nil {
				token := bearerToken(req.Header.Get(echo.HeaderAuthorization))
				if token == "" {
					token = c.QueryParam(queryToken)
				}
				if token != "" {
					tok, err := verifier.VerifyIDToken(req.Context(), token)
					if err != nil {
						return NewUnauthorizedError("invalid ID token")
					}
					id.UID = tok.UID
					if id.Name == "" {
						if name, ok := tok.Claims["name"].(string); ok {
							id.Name = name
						}
					}
				}
			} else {
				id.UID = strings.TrimSpace(firstNonEmpty(req.Header.Get(HeaderUserID), c.QueryParam(queryUID)))
			}

			id.Name = session.NormalizeName(id.Name)
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// identityOf returns the identity resolved by IdentityMiddleware.
func identityOf(c echo.Context) models.Identity {
	if id, ok := c.Get(identityKey).(models.Identity); ok {
		return id
	}
	return models.Identity{Name: session.NormalizeName("")}
}

// scopeOf resolves the request scope from the room query parameter.
func scopeOf(c echo.Context) (models.Scope, error) {
	return scopeFor(c, c.QueryParam(queryRoom))
}

// scopeFor resolves the scope of an explicit room id.
func scopeFor(c echo.Context, room string) (models.Scope, error) {
	scope, err := session.Resolve(room, identityOf(c))
	if err != nil {
		return scope, FromError(err)
	}
	return scope, nil
}

// requireIdentity returns the caller's identity, refusing anonymous requests.
func requireIdentity(c echo.Context) (models.Identity, error) {
	id := identityOf(c)
	if id.UID == "" {
		return id, FromError(session.ErrIdentityRequired)
	}
	return id, nil
}
