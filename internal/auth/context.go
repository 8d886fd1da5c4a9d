package auth

import "context"

type principalKey struct{}

// ContextWithPrincipal returns a child context carrying the authenticated
// principal. The guard attaches it after a successful check.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext reports the principal attached by the guard, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
