package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeValidation,
				Message: "missing required query parameters",
			},
			want: "missing required query parameters",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeUpstream,
				Message: "token exchange failed",
				Cause:   errors.New("invalid_grant"),
			},
			want: "token exchange failed: invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeSession, "destroy session")

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should see through AppError")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Errorf("Wrap(nil) should return nil")
	}
	if Wrapf(nil, ErrCodeInternal, "x %d", 1) != nil {
		t.Errorf("Wrapf(nil) should return nil")
	}
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"validation", Validation("bad"), IsValidation},
		{"validation field", ValidationField("base_grant_url", "bad"), IsValidation},
		{"state mismatch", StateMismatch("mismatch"), IsStateMismatch},
		{"upstream", Upstream("idp down"), IsUpstream},
		{"upstreamf", Upstreamf("idp returned %s", "access_denied"), IsUpstream},
		{"session", Wrap(errors.New("redis"), ErrCodeSession, "save"), IsSession},
		{"not found", NotFound("nope"), IsNotFound},
		{"timeout", Wrap(errors.New("deadline"), ErrCodeTimeout, "slow"), IsTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.pred(tt.err) {
				t.Errorf("predicate did not match %v", tt.err)
			}
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.pred(wrapped) {
				t.Errorf("predicate did not match wrapped %v", wrapped)
			}
		})
	}

	if IsValidation(errors.New("plain")) {
		t.Errorf("plain errors are not validation errors")
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("wrap: %w", ValidationField("user_continue_url", "missing"))
	if got := GetCode(err); got != ErrCodeValidation {
		t.Errorf("GetCode() = %v, want %v", got, ErrCodeValidation)
	}
	if got := GetField(err); got != "user_continue_url" {
		t.Errorf("GetField() = %v, want user_continue_url", got)
	}
	if GetCode(errors.New("plain")) != "" || GetField(errors.New("plain")) != "" {
		t.Errorf("plain errors carry no code or field")
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(Wrap(errors.New("secret detail"), ErrCodeUpstream, "sign-in failed")); got != "sign-in failed" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(errors.New("secret detail")); got != "an unexpected error occurred" {
		t.Errorf("PublicMessage() leaked %q", got)
	}
}
