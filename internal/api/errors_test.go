package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/storage"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"wrapped not approved", fmt.Errorf("listing: %w", session.ErrNotApproved), http.StatusForbidden, "NOT_APPROVED"},
		{"identity", session.ErrIdentityRequired, http.StatusUnauthorized, "IDENTITY_REQUIRED"},
		{"rate limited", pins.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"pin limit", pins.ErrTooManyPins, http.StatusConflict, "PIN_LIMIT"},
		{"image size", pins.ErrImageTooLarge, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
		{"storage not found", storage.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"api error kept", NewNotFoundError("file", "f1"), http.StatusNotFound, "NOT_FOUND"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewValidationError("x"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"domain error", pins.ErrPinNotFound, http.StatusNotFound, "PIN_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(tt.err, c)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

type fakeVerifier struct {
	tokens map[string]*auth.Token
}

func (v *fakeVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	if tok, ok := v.tokens[token]; ok {
		return tok, nil
	}
	return nil, errors.New("invalid token")
}

func TestIdentityMiddleware(t *testing.T) {
	verifier := &fakeVerifier{tokens: map[string]*auth.Token{
		"good": {UID: "firebase-uid", Claims: map[string]interface{}{"name": "Fox"}},
	}}

	tests := []struct {
		name       string
		verifier   TokenVerifier
		target     string
		headers    map[string]string
		wantStatus int
		wantUID    string
		wantName   string
	}{
		{
			name:       "header identity",
			target:     "/",
			headers:    map[string]string{HeaderUserID: " alice ", HeaderDisplayName: "Alice"},
			wantStatus: http.StatusOK,
			wantUID:    "alice",
			wantName:   "Alice",
		},
		{
			name:       "query identity",
			target:     "/?uid=bob&name=Bob",
			wantStatus: http.StatusOK,
			wantUID:    "bob",
			wantName:   "Bob",
		},
		{
			name:       "anonymous",
			target:     "/",
			wantStatus: http.StatusOK,
			wantName:   "Anonymous",
		},
		{
			name:       "bearer token",
			verifier:   verifier,
			target:     "/",
			headers:    map[string]string{echo.HeaderAuthorization: "Bearer good"},
			wantStatus: http.StatusOK,
			wantUID:    "firebase-uid",
			wantName:   "Fox",
		},
		{
			name:       "token query with name override",
			verifier:   verifier,
			target:     "/?token=good&name=Wolf",
			wantStatus: http.StatusOK,
			wantUID:    "firebase-uid",
			wantName:   "Wolf",
		},
		{
			name:       "header uid ignored with verifier",
			verifier:   verifier,
			target:     "/",
			headers:    map[string]string{HeaderUserID: "spoofed"},
			wantStatus: http.StatusOK,
			wantName:   "Anonymous",
		},
		{
			name:       "invalid token",
			verifier:   verifier,
			target:     "/",
			headers:    map[string]string{echo.HeaderAuthorization: "Bearer bad"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = ErrorHandler
			var got models.Identity
			e.GET("/", func(c echo.Context) error {
				got = identityOf(c)
				return c.NoContent(http.StatusOK)
			}, IdentityMiddleware(tt.verifier))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantUID, got.UID)
				assert.Equal(t, tt.wantName, got.Name)
			}
		})
	}
}
