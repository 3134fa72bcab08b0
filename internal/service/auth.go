package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
	"github.com/spie-ics/meraki-captive-portal/internal/observability/metrics"
	"github.com/spie-ics/meraki-captive-portal/internal/observability/statsd"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
)

// DefaultSessionTTL is the inactivity window of a browser session.
const DefaultSessionTTL = 60 * time.Second

// Public messages for sign-in failures.
const (
	msgMissingParams     = "missing required query parameters"
	msgInvalidGrantURL   = "invalid base_grant_url domain"
	msgResponseNotFound  = "response not found"
	msgStateMismatch     = "state mismatch"
	msgMissingCode       = "missing authorization code"
	msgInvalidState      = "invalid state parameter"
	msgMissingRedirect   = "missing redirect URL in state"
	msgInvalidRedirect   = "invalid redirect target"
	msgProviderRejected  = "sign-in was rejected by the identity provider"
	msgAuthURLFailed     = "could not start sign-in"
	msgExchangeFailed    = "token exchange failed"
	msgSessionFailed     = "session storage failed"
	msgProviderTimeout   = "identity provider timed out"
	continueURLParamName = "continue_url"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider  ports.IdentityProvider
	Sessions  ports.SessionStore
	Validator domainauth.RedirectValidator
	Metrics   statsd.Sink
	Logger    *slog.Logger

	// Scopes requested from the provider.
	Scopes []string
	// RedirectURI is where the provider posts the authorization response.
	RedirectURI string
	// PostLogoutRedirectURI is passed to the provider's end-session endpoint.
	PostLogoutRedirectURI string
	// SessionTTL is the rolling inactivity expiry; defaults to DefaultSessionTTL.
	SessionTTL time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// AuthService orchestrates the captive portal sign-in flow: it builds the
// authorization request, completes the code exchange and tears sessions down.
type AuthService struct {
	provider              ports.IdentityProvider
	sessions              ports.SessionStore
	validator             domainauth.RedirectValidator
	metrics               statsd.Sink
	logger                *slog.Logger
	scopes                []string
	redirectURI           string
	postLogoutRedirectURI string
	ttl                   time.Duration
	now                   func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.RedirectURI == "" {
		return nil, errors.New("redirect URI is required")
	}
	if opts.Validator.TrustedDomain() == "" {
		return nil, errors.New("trusted redirect domain is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider:              opts.Provider,
		sessions:              opts.Sessions,
		validator:             opts.Validator,
		metrics:               opts.Metrics,
		logger:                logger.With("component", "auth_service"),
		scopes:                append([]string(nil), opts.Scopes...),
		redirectURI:           opts.RedirectURI,
		postLogoutRedirectURI: opts.PostLogoutRedirectURI,
		ttl:                   ttl,
		now:                   now,
	}, nil
}

// MustNewAuthService is NewAuthService that panics on invalid options.
func MustNewAuthService(opts AuthServiceOptions) *AuthService {
	svc, err := NewAuthService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// SessionTTL returns the rolling inactivity expiry.
func (s *AuthService) SessionTTL() time.Duration { return s.ttl }

// LoadSession returns the live session for id, or a fresh anonymous session
// when id is empty, unknown or expired.
func (s *AuthService) LoadSession(ctx context.Context, id string) (*domainauth.Session, error) {
	if id != "" {
		sess, err := s.sessions.Get(ctx, id)
		switch {
		case err == nil:
			if s.now().Before(sess.ExpiresAt) {
				return &sess, nil
			}
		case errors.Is(err, domainauth.ErrSessionNotFound):
		default:
			return nil, apperrors.Wrap(err, apperrors.ErrCodeSession, msgSessionFailed)
		}
	}
	now := s.now()
	return &domainauth.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// TouchSession extends the session's expiry and persists it.
func (s *AuthService) TouchSession(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return apperrors.Internal("nil session")
	}
	sess.ExpiresAt = s.now().Add(s.ttl)
	if err := s.sessions.Save(ctx, *sess); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSession, msgSessionFailed)
	}
	return nil
}

// BeginLoginInput carries the splash page parameters.
type BeginLoginInput struct {
	BaseGrantURL    string
	UserContinueURL string
}

// BeginLogin validates the grant target, records a new flow in sess and
// returns the provider authorization URL. The session is saved only when the
// URL was built.
func (s *AuthService) BeginLogin(ctx context.Context, sess *domainauth.Session, in BeginLoginInput) (string, error) {
	start := s.now()
	authURL, err := s.beginLogin(ctx, sess, in)
	s.observe(metrics.StageLogin, start, err)
	if err != nil {
		s.logFailure(ctx, "login failed", err, sess)
		return "", err
	}
	s.logger.InfoContext(ctx, "login started", "session_id", sess.ID)
	return authURL, nil
}

func (s *AuthService) beginLogin(ctx context.Context, sess *domainauth.Session, in BeginLoginInput) (string, error) {
	if sess == nil {
		return "", apperrors.Internal("nil session")
	}
	baseGrant := strings.TrimSpace(in.BaseGrantURL)
	continueURL := strings.TrimSpace(in.UserContinueURL)
	if baseGrant == "" || continueURL == "" {
		return "", apperrors.Validation(msgMissingParams)
	}
	if err := s.validator.ValidateRedirectTarget(baseGrant); err != nil {
		return "", &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: msgInvalidGrantURL,
			Field:   "base_grant_url",
			Cause:   err,
		}
	}

	successRedirect, err := buildSuccessRedirect(baseGrant, continueURL)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeValidation, msgInvalidGrantURL)
	}
	state, err := domainauth.EncodeState(domainauth.OpaqueState{SuccessRedirect: successRedirect})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, msgAuthURLFailed)
	}
	pkce, err := domainauth.GeneratePKCECodes()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, msgAuthURLFailed)
	}
	nonce, err := domainauth.GenerateNonce()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, msgAuthURLFailed)
	}

	flow := &domainauth.FlowState{
		PKCE: pkce,
		AuthCodeURLRequest: domainauth.AuthCodeURLRequest{
			State:               state,
			Nonce:               nonce,
			Scopes:              append([]string(nil), s.scopes...),
			RedirectURI:         s.redirectURI,
			ResponseMode:        domainauth.ResponseModeFormPost,
			CodeChallenge:       pkce.Challenge,
			CodeChallengeMethod: pkce.ChallengeMethod,
		},
		AuthCodeRequest: domainauth.AuthCodeRequest{
			State:       state,
			Nonce:       nonce,
			Scopes:      append([]string(nil), s.scopes...),
			RedirectURI: s.redirectURI,
		},
		StartedAt: s.now(),
	}

	authURL, err := s.provider.AuthCodeURL(ctx, flow.AuthCodeURLRequest)
	if err != nil {
		return "", providerError(err, msgAuthURLFailed)
	}

	sess.Flow = flow
	if err := s.TouchSession(ctx, sess); err != nil {
		return "", err
	}
	return authURL, nil
}

// RedirectInput is the form_post body sent back by the provider.
type RedirectInput struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CompleteLogin finishes the flow in sess and returns the validated grant URL
// to redirect to. Every failure of a pending flow leaves the session anonymous.
func (s *AuthService) CompleteLogin(ctx context.Context, sess *domainauth.Session, in RedirectInput) (string, error) {
	start := s.now()
	target, err := s.completeLogin(ctx, sess, in)
	s.observe(metrics.StageRedirect, start, err)
	if err != nil {
		s.logFailure(ctx, "sign-in callback failed", err, sess)
		return "", err
	}
	s.logger.InfoContext(ctx, "login completed", "session_id", sess.ID, "username", sess.Username())
	return target, nil
}

func (s *AuthService) completeLogin(ctx context.Context, sess *domainauth.Session, in RedirectInput) (string, error) {
	if sess == nil {
		return "", apperrors.Internal("nil session")
	}
	flow := sess.Flow

	if in.State == "" {
		return "", s.abandonFlow(ctx, sess, apperrors.Validation(msgResponseNotFound))
	}
	if in.Error != "" {
		err := apperrors.Wrap(fmt.Errorf("%s: %s", in.Error, in.ErrorDescription), apperrors.ErrCodeUpstream, msgProviderRejected)
		return "", s.abandonFlow(ctx, sess, err)
	}
	if flow == nil || !statesEqual(in.State, flow.AuthCodeURLRequest.State) {
		return "", s.abandonFlow(ctx, sess, apperrors.StateMismatch(msgStateMismatch))
	}
	if in.Code == "" {
		return "", s.abandonFlow(ctx, sess, apperrors.ValidationField("code", msgMissingCode))
	}

	opaque, err := domainauth.DecodeState(in.State)
	if err != nil {
		return "", s.abandonFlow(ctx, sess, apperrors.Wrap(err, apperrors.ErrCodeValidation, msgInvalidState))
	}
	if opaque.SuccessRedirect == "" {
		return "", s.abandonFlow(ctx, sess, apperrors.Validation(msgMissingRedirect))
	}

	req := flow.AuthCodeRequest
	req.Code = in.Code
	req.CodeVerifier = flow.PKCE.Verifier
	req.Nonce = flow.AuthCodeURLRequest.Nonce

	exchangeStart := s.now()
	res, err := s.provider.ExchangeCode(ctx, ports.ExchangeInput{Request: req, TokenCache: sess.TokenCache})
	metrics.EmitExchangeTiming(s.metrics, s.now().Sub(exchangeStart), err)
	if err != nil {
		return "", s.abandonFlow(ctx, sess, providerError(err, msgExchangeFailed))
	}

	account := res.Account
	sess.TokenCache = res.TokenCache
	sess.IDToken = res.IDToken
	sess.Account = &account
	sess.IsAuthenticated = true
	sess.ClearFlow()
	if err := s.TouchSession(ctx, sess); err != nil {
		return "", err
	}

	if err := s.validator.ValidateRedirectTarget(opaque.SuccessRedirect); err != nil {
		sess.Deauthenticate()
		verr := apperrors.Wrap(err, apperrors.ErrCodeValidation, msgInvalidRedirect)
		if saveErr := s.TouchSession(ctx, sess); saveErr != nil {
			return "", errors.Join(verr, saveErr)
		}
		return "", verr
	}
	return opaque.SuccessRedirect, nil
}

// Logout destroys sess and returns the provider's end-session URL. Nothing is
// returned when the session could not be destroyed.
func (s *AuthService) Logout(ctx context.Context, sess *domainauth.Session) (string, error) {
	start := s.now()
	endSession := s.provider.EndSessionURL(s.postLogoutRedirectURI)
	var err error
	if sess != nil && sess.ID != "" {
		if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
			err = apperrors.Wrap(delErr, apperrors.ErrCodeSession, msgSessionFailed)
		}
	}
	s.observe(metrics.StageLogout, start, err)
	if err != nil {
		s.logFailure(ctx, "logout failed", err, sess)
		return "", err
	}
	username := ""
	if sess != nil {
		username = sess.Username()
		sess.Deauthenticate()
	}
	s.logger.InfoContext(ctx, "logout", "username", username)
	return endSession, nil
}

// abandonFlow returns a session with a pending flow to anonymous, persists
// it and returns cause. A session with no flow is left untouched and unsaved.
func (s *AuthService) abandonFlow(ctx context.Context, sess *domainauth.Session, cause error) error {
	if !sess.Pending() {
		return cause
	}
	sess.Deauthenticate()
	if err := s.TouchSession(ctx, sess); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (s *AuthService) observe(stage metrics.Stage, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthFlow(s.metrics, metrics.AuthMetric{
		Stage:    stage,
		Result:   result,
		Duration: s.now().Sub(start),
		Err:      err,
	})
}

func (s *AuthService) logFailure(ctx context.Context, msg string, err error, sess *domainauth.Session) {
	attrs := []any{"error", err, "error_code", string(apperrors.GetCode(err))}
	if sess != nil {
		attrs = append(attrs, "session_id", sess.ID)
	}
	if field := apperrors.GetField(err); field != "" {
		attrs = append(attrs, "field", field)
	}
	s.logger.WarnContext(ctx, msg, attrs...)
}

// buildSuccessRedirect appends continue_url to the grant URL's query.
func buildSuccessRedirect(baseGrantURL, continueURL string) (string, error) {
	u, err := url.Parse(baseGrantURL)
	if err != nil {
		return "", fmt.Errorf("parse base_grant_url: %w", err)
	}
	q := u.Query()
	q.Set(continueURLParamName, continueURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// statesEqual compares the returned state with the stored one byte for byte.
func statesEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// providerError classifies an identity provider failure.
func providerError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, msgProviderTimeout)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUpstream, msg)
}
