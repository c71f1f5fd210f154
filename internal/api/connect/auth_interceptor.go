package connect

import (
	"context"
	"crypto/subtle"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// AuthorizationHeader carries the bearer token for mutating calls.
	AuthorizationHeader = "Authorization"

	bearerPrefix = "Bearer "
)

var errInvalidToken = errors.New("invalid or missing bearer token")

// NewAuthInterceptor creates an interceptor that requires a bearer token on SendIntent.
// An empty token disables the check.
func NewAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token == "" || req.Spec().Procedure != SendIntentProcedure {
				return next(ctx, req)
			}

			got, ok := strings.CutPrefix(req.Header().Get(AuthorizationHeader), bearerPrefix)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
			}

			return next(ctx, req)
		}
	}
}

// NewTokenInterceptor creates a client interceptor that attaches the bearer token.
func NewTokenInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token != "" && req.Spec().IsClient {
				req.Header().Set(AuthorizationHeader, bearerPrefix+token)
			}
			return next(ctx, req)
		}
	}
}
