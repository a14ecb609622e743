package session

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"dealergate/pkg/identity"
)

// Resolver owns the process-wide session snapshot. It is the only writer;
// readers call Snapshot or Subscribe.
type Resolver struct {
	provider identity.Provider
	loader   *Loader
	log      *zap.SugaredLogger

	snap atomic.Pointer[Snapshot]
	// gen increases on every identity change; loads started under an older
	// generation are dropped.
	gen      atomic.Uint64
	commitMu sync.Mutex

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int

	baseCtx     context.Context
	unsubscribe func()
	inflight    sync.WaitGroup
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

func NewResolver(provider identity.Provider, loader *Loader, log *zap.SugaredLogger) *Resolver {
	r := &Resolver{provider: provider, loader: loader, log: log, baseCtx: context.Background()}
	r.snap.Store(&Snapshot{Loading: true})
	return r
}

// Snapshot returns the latest published value.
func (r *Resolver) Snapshot() Snapshot { return *r.snap.Load() }

// Subscribe registers fn for every published snapshot. fn runs on the
// publishing goroutine and must not block.
func (r *Resolver) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.nextSub++
	id := r.nextSub
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Start resolves any pre-existing session, then follows identity changes
// until Close.
func (r *Resolver) Start(ctx context.Context) {
	r.baseCtx = context.WithoutCancel(ctx)
	gen := r.gen.Add(1)
	r.publish(gen, Snapshot{Loading: true})
	r.unsubscribe = r.provider.OnSessionChange(r.onSessionChange)

	sess, err := r.provider.CurrentSession(ctx)
	if err != nil {
		r.log.Warnw("current session unavailable", "err", err)
	}
	if sess == nil {
		r.publish(gen, Snapshot{})
		return
	}
	id := sess.Identity
	r.publish(gen, r.loader.Load(ctx, &id))
}

func (r *Resolver) onSessionChange(sess *identity.Session) {
	gen := r.gen.Add(1)
	if sess == nil {
		r.publish(gen, Snapshot{})
		return
	}
	id := sess.Identity
	// Identity known, profile not yet: the explicit awaiting interval.
	r.publish(gen, Snapshot{Identity: &id})

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.publish(gen, r.loader.Load(r.baseCtx, &id))
	}()
}

// Refresh re-fetches the profile and dealership for the current identity
// and replaces the snapshot. Concurrent calls converge because each result
// replaces the previous one whole.
func (r *Resolver) Refresh(ctx context.Context) Snapshot {
	gen := r.gen.Load()
	cur := r.Snapshot()
	if cur.Identity == nil {
		return cur
	}
	id := *cur.Identity
	r.loader.Invalidate(ctx, id.ID)
	next := r.loader.Load(ctx, &id)
	if !r.publish(gen, next) {
		return r.Snapshot()
	}
	return next
}

// BeginTransition publishes a loading snapshot ahead of an identity change
// such as sign-out. abort restores the previous snapshot if no change
// arrived in between.
func (r *Resolver) BeginTransition() (abort func()) {
	prev := r.Snapshot()
	gen := r.gen.Add(1)
	r.publish(gen, Snapshot{Loading: true})
	return func() { r.publish(gen, prev) }
}

// Wait blocks until background profile loads have finished.
func (r *Resolver) Wait() { r.inflight.Wait() }

// Close stops following identity changes.
func (r *Resolver) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.inflight.Wait()
}

func (r *Resolver) publish(gen uint64, s Snapshot) bool {
	r.commitMu.Lock()
	if gen != r.gen.Load() {
		r.commitMu.Unlock()
		return false
	}
	r.snap.Store(&s)
	r.commitMu.Unlock()

	r.subMu.Lock()
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.subMu.Unlock()
	for _, sub := range subs {
		sub.fn(s)
	}
	return true
}
