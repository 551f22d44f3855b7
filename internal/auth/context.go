package auth

import (
	"context"

	"github.com/empire-compass/compass-server/internal/model"
)

type ctxKey string

const identityKey ctxKey = "compass.identity"

// WithIdentity stores the verified identity in the context.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the verified identity from the context.
func IdentityFromCtx(ctx context.Context) (*model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*model.Identity)
	return id, ok && id != nil
}
