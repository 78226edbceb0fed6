package middleware

import (
	"context"

	"github.com/angelmondragon/donation-ledger/pkg/auth"
)

type callerKey struct{}

// WithCaller stores the verified caller on ctx.
func WithCaller(ctx context.Context, caller auth.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by Auth.
func CallerFromContext(ctx context.Context) (auth.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(auth.Caller)
	return caller, ok
}
