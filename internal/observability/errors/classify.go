package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
)

// Classify returns a low-cardinality error class for metric tags.
// Failures the sign-in flow sees often get stable names; anything else falls
// back to the innermost error's type name in snake case.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var retrieveErr *oauth2.RetrieveError
	var netErr net.Error
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, domainauth.ErrSessionNotFound):
		return "session_not_found"
	case goerrors.Is(err, redis.Nil):
		return "redis_nil"
	case goerrors.Is(err, domainauth.ErrRedirectDomain), goerrors.Is(err, domainauth.ErrRedirectNotAbsolute):
		return "redirect_rejected"
	case goerrors.As(err, &retrieveErr):
		if retrieveErr.ErrorCode != "" {
			return "oauth2_" + normalize(retrieveErr.ErrorCode)
		}
		return "oauth2_retrieve"
	case goerrors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	if name := normalize(t.String()); name != "" {
		return name
	}
	return "unknown"
}

func normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "*", ""))
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(s)
}
