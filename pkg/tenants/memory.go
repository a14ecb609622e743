// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryStore keeps profiles and dealerships in process memory.
type MemoryStore struct {
	log      *zap.SugaredLogger
	mu       sync.RWMutex
	tenants  map[string]Tenant
	profiles map[string]Profile
	staff    map[string]StaffRecord
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(log *zap.SugaredLogger) *MemoryStore {
	return &MemoryStore{
		log:      log,
		tenants:  map[string]Tenant{},
		profiles: map[string]Profile{},
		staff:    map[string]StaffRecord{},
	}
}

// NewMemoryStoreFromEnv seeds dealerships from TENANT_SEED_JSON:
// [{"id":"...","name":"...","code":"...","status":"active"}]
func NewMemoryStoreFromEnv(log *zap.SugaredLogger) Store {
	m := NewMemoryStore(log)
	seed := os.Getenv("TENANT_SEED_JSON")
	if seed == "" {
		return m
	}
	var entries []Tenant
	if err := json.Unmarshal([]byte(seed), &entries); err != nil {
		log.Warnw("tenant seed ignored", "err", err)
		return m
	}
	for _, e := range entries {
		if _, err := m.InsertTenant(context.Background(), e); err != nil {
			log.Warnw("tenant seed entry skipped", "code", e.Code, "err", err)
		}
	}
	return m
}

func (m *MemoryStore) ProfileWithTenant(ctx context.Context, identityID string) (Profile, *Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[identityID]
	if !ok {
		return Profile{}, nil, fmt.Errorf("profile %s: %w", identityID, ErrNotFound)
	}
	if !p.Linked() {
		return p, nil, nil
	}
	t, ok := m.tenants[*p.TenantID]
	if !ok {
		return p, nil, nil
	}
	return p, &t, nil
}

func (m *MemoryStore) TenantByCode(ctx context.Context, code string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.Code == code {
			return t, nil
		}
	}
	return Tenant{}, fmt.Errorf("tenant code %q: %w", code, ErrNotFound)
}

func (m *MemoryStore) InsertTenant(ctx context.Context, t Tenant) (Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Code == "" {
		t.Code = NewCode()
	}
	if t.Status == "" {
		t.Status = TenantPending
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Code == t.Code {
			return Tenant{}, ErrDuplicateCode
		}
	}
	m.tenants[t.ID] = t
	return t, nil
}

func (m *MemoryStore) DeleteTenant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	delete(m.tenants, id)
	return nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Linked() {
		if _, ok := m.tenants[*p.TenantID]; !ok {
			return fmt.Errorf("tenant %s: %w", *p.TenantID, ErrNotFound)
		}
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) InsertStaffRecord(ctx context.Context, r StaffRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[r.TenantID]; !ok {
		return fmt.Errorf("tenant %s: %w", r.TenantID, ErrNotFound)
	}
	m.staff[r.ID] = r
	return nil
}

// SetTenantStatus is the dev/test stand-in for the out-of-scope approval screen.
func (m *MemoryStore) SetTenantStatus(id string, status TenantStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		t.Status = status
		m.tenants[id] = t
	}
}

// Staff returns the staff rows of a tenant.
func (m *MemoryStore) Staff(tenantID string) []StaffRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StaffRecord
	for _, r := range m.staff {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out
}

// TenantCount is used by tests to assert compensation.
func (m *MemoryStore) TenantCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants)
}
