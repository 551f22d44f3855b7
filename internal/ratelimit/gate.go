package ratelimit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/empire-compass/compass-server/internal/docstore"
	"github.com/empire-compass/compass-server/internal/errs"
	"github.com/empire-compass/compass-server/internal/model"
)

// UsersCollection holds user profile documents; the is_admin flag lives there.
const UsersCollection = "Users"

// AdminChecker decides whether an identity bypasses the AI quota.
type AdminChecker interface {
	IsAdmin(ctx context.Context, id *model.Identity) bool
}

// AdminResolver resolves admin status in cheapest-first order: the token's
// own role flag, then the configured email allow-list, then a profile lookup
// in the document store. A failing store lookup degrades to non-admin rather
// than blocking the request.
type AdminResolver struct {
	allowList map[string]struct{}
	store     docstore.Store
	log       *zap.Logger
}

// NewAdminResolver builds a resolver. Emails are normalized to lower case;
// the allow-list is immutable after construction.
func NewAdminResolver(emails []string, store docstore.Store, log *zap.Logger) *AdminResolver {
	allow := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			allow[e] = struct{}{}
		}
	}
	return &AdminResolver{allowList: allow, store: store, log: log}
}

// IsAdmin reports whether the identity may bypass quota checks.
func (r *AdminResolver) IsAdmin(ctx context.Context, id *model.Identity) bool {
	if id.Admin {
		return true
	}
	if _, ok := r.allowList[strings.ToLower(id.Email)]; ok {
		return true
	}

	doc, err := r.store.Get(ctx, UsersCollection, id.Subject)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			r.log.Warn("admin profile lookup failed, treating as non-admin",
				zap.String("user", id.Subject), zap.Error(err))
		}
		return false
	}
	flag, _ := doc["is_admin"].(bool)
	return flag
}

// Outcome is the result of gating one request.
type Outcome struct {
	Allowed    bool
	Bypassed   bool // admin bypass: no quota consumed, no headers
	FailedOpen bool // limiter infrastructure failure: allowed, no headers
	Decision   Decision
}

// Gate applies the quota policy: admins bypass the limiter entirely, and
// limiter infrastructure failures allow the request (fail open). Missing
// identity is handled upstream and never reaches the gate.
type Gate struct {
	limiter Limiter
	admins  AdminChecker
	log     *zap.Logger
}

// NewGate constructs the gate policy around a limiter.
func NewGate(limiter Limiter, admins AdminChecker, log *zap.Logger) *Gate {
	return &Gate{limiter: limiter, admins: admins, log: log}
}

// Check gates one request for the given identity.
func (g *Gate) Check(ctx context.Context, id *model.Identity) Outcome {
	if g.admins.IsAdmin(ctx, id) {
		return Outcome{Allowed: true, Bypassed: true}
	}

	d, err := g.limiter.Consume(ctx, id.Subject)
	if err != nil {
		g.log.Error("quota check failed, allowing request",
			zap.String("user", id.Subject), zap.Error(err))
		return Outcome{Allowed: true, FailedOpen: true}
	}
	return Outcome{Allowed: d.Allowed, Decision: d}
}
