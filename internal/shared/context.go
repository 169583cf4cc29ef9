package shared

import "context"

// Identity carries the tenant and actor attached to a request. Both are
// opaque identifiers issued by the upstream authorization layer.
type Identity struct {
	TeamID  string
	ActorID string
}

type identityContextKey struct{}

// ContextWithIdentity stores the request identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the request identity from context.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}
