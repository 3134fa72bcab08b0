package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
	"github.com/spie-ics/meraki-captive-portal/internal/service"
)

// mockAuthService is a test double for service.AuthService.
type mockAuthService struct {
	loadSessionFunc   func(ctx context.Context, id string) (*domainauth.Session, error)
	touchSessionFunc  func(ctx context.Context, sess *domainauth.Session) error
	beginLoginFunc    func(ctx context.Context, sess *domainauth.Session, in service.BeginLoginInput) (string, error)
	completeLoginFunc func(ctx context.Context, sess *domainauth.Session, in service.RedirectInput) (string, error)
	logoutFunc        func(ctx context.Context, sess *domainauth.Session) (string, error)
}

func (m *mockAuthService) SessionTTL() time.Duration { return time.Minute }

func (m *mockAuthService) LoadSession(ctx context.Context, id string) (*domainauth.Session, error) {
	if m.loadSessionFunc != nil {
		return m.loadSessionFunc(ctx, id)
	}
	if id == "" {
		id = "new-session"
	}
	return &domainauth.Session{ID: id}, nil
}

func (m *mockAuthService) TouchSession(ctx context.Context, sess *domainauth.Session) error {
	if m.touchSessionFunc != nil {
		return m.touchSessionFunc(ctx, sess)
	}
	return nil
}

func (m *mockAuthService) BeginLogin(
	ctx context.Context,
	sess *domainauth.Session,
	in service.BeginLoginInput,
) (string, error) {
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, sess, in)
	}
	return "https://idp.example.com/authorize?state=test-state", nil
}

func (m *mockAuthService) CompleteLogin(
	ctx context.Context,
	sess *domainauth.Session,
	in service.RedirectInput,
) (string, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, sess, in)
	}
	return testGrantURL + "?continue_url=" + url.QueryEscape(testContinueURL), nil
}

func (m *mockAuthService) Logout(ctx context.Context, sess *domainauth.Session) (string, error) {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, sess)
	}
	return "https://idp.example.com/logout", nil
}

func TestSignIn_PassesQueryAndSetsCookie(t *testing.T) {
	var got service.BeginLoginInput
	h := &AuthHandlers{Svc: &mockAuthService{
		beginLoginFunc: func(_ context.Context, _ *domainauth.Session, in service.BeginLoginInput) (string, error) {
			got = in
			return "https://idp.example.com/authorize", nil
		},
	}}

	rec := httptest.NewRecorder()
	h.SignIn(rec, signInRequest(testGrantURL, testContinueURL))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/authorize", rec.Header().Get("Location"))
	assert.Equal(t, testGrantURL, got.BaseGrantURL)
	assert.Equal(t, testContinueURL, got.UserContinueURL)
	c := sessionCookie(t, rec)
	require.NotNil(t, c)
	assert.Equal(t, "new-session", c.Value)
	assert.Equal(t, 60, c.MaxAge)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestSignIn_ErrorSetsNoCookie(t *testing.T) {
	h := &AuthHandlers{Svc: &mockAuthService{
		beginLoginFunc: func(context.Context, *domainauth.Session, service.BeginLoginInput) (string, error) {
			return "", apperrors.ValidationField(ParamBaseGrantURL, "base_grant_url is required")
		},
	}}

	rec := httptest.NewRecorder()
	h.SignIn(rec, signInRequest("", testContinueURL))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Nil(t, sessionCookie(t, rec))
}

func TestReturn_ForwardsFormFields(t *testing.T) {
	var got service.RedirectInput
	h := &AuthHandlers{Svc: &mockAuthService{
		completeLoginFunc: func(_ context.Context, _ *domainauth.Session, in service.RedirectInput) (string, error) {
			got = in
			return testGrantURL, nil
		},
	}}

	form := url.Values{
		"state":             {"s1"},
		"code":              {"c1"},
		"error":             {""},
		"error_description": {""},
	}
	rec := httptest.NewRecorder()
	h.Return(rec, returnRequest(form, &http.Cookie{Name: DefaultSessionCookieName, Value: "sid"}))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testGrantURL, rec.Header().Get("Location"))
	assert.Equal(t, service.RedirectInput{State: "s1", Code: "c1"}, got)
	c := sessionCookie(t, rec)
	require.NotNil(t, c)
	assert.Equal(t, "sid", c.Value)
}

func TestReturn_CookieOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		pending    bool
		err        error
		wantStatus int
		wantCookie bool
	}{
		{
			name:       "state mismatch keeps session cookie",
			pending:    true,
			err:        apperrors.StateMismatch("state mismatch"),
			wantStatus: http.StatusForbidden,
			wantCookie: true,
		},
		{
			name:       "provider error keeps session cookie",
			pending:    true,
			err:        apperrors.Upstreamf("identity provider returned %s", "access_denied"),
			wantStatus: http.StatusBadGateway,
			wantCookie: true,
		},
		{
			name:       "session store failure drops cookie",
			pending:    true,
			err:        apperrors.Wrap(errors.New("redis down"), apperrors.ErrCodeSession, "save session"),
			wantStatus: http.StatusInternalServerError,
			wantCookie: false,
		},
		{
			name:       "no pending flow sets no cookie",
			pending:    false,
			err:        apperrors.StateMismatch("state mismatch"),
			wantStatus: http.StatusForbidden,
			wantCookie: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandlers{Svc: &mockAuthService{
				loadSessionFunc: func(context.Context, string) (*domainauth.Session, error) {
					sess := &domainauth.Session{ID: "sid"}
					if tt.pending {
						sess.Flow = &domainauth.FlowState{}
					}
					return sess, nil
				},
				completeLoginFunc: func(context.Context, *domainauth.Session, service.RedirectInput) (string, error) {
					return "", tt.err
				},
			}}
			rec := httptest.NewRecorder()
			h.Return(rec, returnRequest(url.Values{"state": {"s"}}, &http.Cookie{Name: DefaultSessionCookieName, Value: "sid"}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantCookie, sessionCookie(t, rec) != nil)
		})
	}
}

func TestReturn_OversizedBody(t *testing.T) {
	called := false
	h := &AuthHandlers{MaxFormBytes: 16, Svc: &mockAuthService{
		completeLoginFunc: func(context.Context, *domainauth.Session, service.RedirectInput) (string, error) {
			called = true
			return testGrantURL, nil
		},
	}}
	rec := httptest.NewRecorder()
	h.Return(rec, returnRequest(url.Values{"code": {strings.Repeat("x", 64)}}, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
}

func TestSignOut(t *testing.T) {
	t.Run("clears cookie and redirects", func(t *testing.T) {
		h := &AuthHandlers{Svc: &mockAuthService{}}
		req := httptest.NewRequest(http.MethodGet, PathSignOut, nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "sid"})
		rec := httptest.NewRecorder()
		h.SignOut(rec, req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://idp.example.com/logout", rec.Header().Get("Location"))
		c := sessionCookie(t, rec)
		require.NotNil(t, c)
		assert.Equal(t, -1, c.MaxAge)
	})

	t.Run("error does not redirect", func(t *testing.T) {
		h := &AuthHandlers{Svc: &mockAuthService{
			logoutFunc: func(context.Context, *domainauth.Session) (string, error) {
				return "", apperrors.Wrap(errors.New("redis down"), apperrors.ErrCodeSession, "destroy session")
			},
		}}
		rec := httptest.NewRecorder()
		h.SignOut(rec, httptest.NewRequest(http.MethodGet, PathSignOut, nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Nil(t, sessionCookie(t, rec))
	})
}

func TestIndex_TouchesOnlyLiveSession(t *testing.T) {
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: os.DirFS(TemplatePathFromTest)})
	require.NoError(t, err)

	touched := 0
	svc := &mockAuthService{
		loadSessionFunc: func(_ context.Context, id string) (*domainauth.Session, error) {
			if id == "live" {
				return &domainauth.Session{
					ID:              "live",
					IsAuthenticated: true,
					Account:         &domainauth.Account{Username: "guest@example.com"},
				}, nil
			}
			return &domainauth.Session{ID: "fresh"}, nil
		},
		touchSessionFunc: func(context.Context, *domainauth.Session) error {
			touched++
			return nil
		},
	}
	h := &PortalHandlers{Svc: svc, Renderer: tr, Title: "Guest WiFi"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "live"})
	rec := httptest.NewRecorder()
	h.Index(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "guest@example.com")
	assert.Equal(t, 1, touched)
	assert.NotNil(t, sessionCookie(t, rec))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "expired"})
	rec = httptest.NewRecorder()
	h.Index(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, touched)
	assert.Nil(t, sessionCookie(t, rec))
}

func TestIndex_TouchFailureStillRenders(t *testing.T) {
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: os.DirFS(TemplatePathFromTest)})
	require.NoError(t, err)

	h := &PortalHandlers{Renderer: tr, Svc: &mockAuthService{
		touchSessionFunc: func(context.Context, *domainauth.Session) error {
			return errors.New("redis down")
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "sid"})
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(t, rec))
}
