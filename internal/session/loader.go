package session

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"dealergate/internal/metrics"
	"dealergate/pkg/identity"
	"dealergate/pkg/tenants"
)

// Loader fetches the profile and dealership behind an identity.
type Loader struct {
	store   tenants.Store
	timeout time.Duration
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewLoader(store tenants.Store, timeout time.Duration, log *zap.SugaredLogger, m *metrics.Metrics) *Loader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Loader{store: store, timeout: timeout, log: log, metrics: m}
}

type fetchResult struct {
	profile tenants.Profile
	tenant  *tenants.Tenant
	err     error
}

// Load builds a settled snapshot for id. Fetch failures are logged and
// leave Profile and Tenant nil; a timeout additionally sets Stalled.
func (l *Loader) Load(ctx context.Context, id *identity.Identity) Snapshot {
	if id == nil {
		return Snapshot{}
	}
	who := *id
	snap := Snapshot{Identity: &who}

	ctx, span := otel.Tracer("dealergate/session").Start(ctx, "session.load_profile")
	defer span.End()
	span.SetAttributes(attribute.String("identity.id", who.ID))

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// The store may ignore ctx; the select bounds the wait regardless.
	ch := make(chan fetchResult, 1)
	go func() {
		p, t, err := l.store.ProfileWithTenant(ctx, who.ID)
		ch <- fetchResult{profile: p, tenant: t, err: err}
	}()

	var res fetchResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	switch {
	case res.err == nil:
		p := res.profile
		snap.Profile = &p
		snap.Tenant = res.tenant
		l.metrics.ProfileFetch("ok")
	case errors.Is(res.err, context.DeadlineExceeded):
		snap.Stalled = true
		l.log.Errorw("profile fetch timed out", "identity_id", who.ID, "timeout", l.timeout)
		span.SetStatus(codes.Error, "timeout")
		l.metrics.ProfileFetch("timeout")
	case errors.Is(res.err, tenants.ErrNotFound):
		l.log.Warnw("no profile for identity", "identity_id", who.ID)
		l.metrics.ProfileFetch("missing")
	default:
		l.log.Errorw("profile fetch failed", "identity_id", who.ID, "err", res.err)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, "fetch failed")
		l.metrics.ProfileFetch("error")
	}
	return snap
}

// Invalidate drops any cached copy of the identity's profile.
func (l *Loader) Invalidate(ctx context.Context, identityID string) {
	inv, ok := l.store.(tenants.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, identityID); err != nil {
		l.log.Warnw("profile cache invalidate", "identity_id", identityID, "err", err)
	}
}
