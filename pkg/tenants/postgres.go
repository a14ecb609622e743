// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dealergate/pkg/db"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed profile store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the tenant, profile and staff tables if missing.
// Safe to call repeatedly.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  name text NOT NULL,
  code text NOT NULL UNIQUE,
  status text NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','active','inactive','rejected')),
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS profiles (
  id uuid PRIMARY KEY,
  username text NOT NULL,
  role text NOT NULL CHECK (role IN ('platform_operator','tenant_admin','tenant_staff')),
  tenant_id uuid REFERENCES tenants(id),
  status text NOT NULL DEFAULT 'active' CHECK (status IN ('active','pending')),
  phone text,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  CONSTRAINT profiles_tenant_linkage CHECK (
    (role = 'platform_operator' AND tenant_id IS NULL) OR
    (role <> 'platform_operator' AND tenant_id IS NOT NULL)
  )
);
CREATE TABLE IF NOT EXISTS staff (
  id uuid PRIMARY KEY,
  tenant_id uuid NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  profile_id uuid REFERENCES profiles(id) ON DELETE SET NULL,
  name text NOT NULL,
  phone text,
  position text NOT NULL DEFAULT 'staff',
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS profiles_tenant_idx ON profiles(tenant_id);
ALTER TABLE staff ENABLE ROW LEVEL SECURITY;
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = 'staff' AND policyname = 'staff_tenant_isolation') THEN
    CREATE POLICY staff_tenant_isolation ON staff
      USING (tenant_id::text = current_setting('app.tenant_id', true))
      WITH CHECK (tenant_id::text = current_setting('app.tenant_id', true));
  END IF;
END $$;
`)
	return err
}

// SeedFromEnv upserts dealerships from TENANT_SEED_JSON (same format as the
// memory store).
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []Tenant
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Status == "" {
			e.Status = TenantActive
		}
		if _, err := dbPool.Exec(ctx, `INSERT INTO tenants(id,name,code,status) VALUES ($1,$2,$3,$4)
		  ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, code=EXCLUDED.code, status=EXCLUDED.status, updated_at=NOW()`,
			e.ID, e.Name, e.Code, string(e.Status)); err != nil {
			return fmt.Errorf("seed tenant %s: %w", e.Code, err)
		}
	}
	return nil
}

// ProfileWithTenant reads a profile joined with its dealership.
func (p *pgStore) ProfileWithTenant(ctx context.Context, identityID string) (Profile, *Tenant, error) {
	row := p.dbPool.QueryRow(ctx, `
SELECT p.id::text, p.username, p.role, p.tenant_id::text, p.status, COALESCE(p.phone,''),
       t.id::text, COALESCE(t.name,''), COALESCE(t.code,''), COALESCE(t.status,'')
FROM profiles p LEFT JOIN tenants t ON t.id = p.tenant_id
WHERE p.id = $1`, identityID)
	var (
		prof                 Profile
		role, status         string
		tenantID, joinedID   *string
		tName, tCode, tState string
	)
	if err := row.Scan(&prof.ID, &prof.Username, &role, &tenantID, &status, &prof.Phone,
		&joinedID, &tName, &tCode, &tState); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, nil, fmt.Errorf("profile %s: %w", identityID, ErrNotFound)
		}
		return Profile{}, nil, err
	}
	prof.Role = Role(role)
	prof.Status = ProfileStatus(status)
	prof.TenantID = tenantID
	if joinedID == nil {
		return prof, nil, nil
	}
	return prof, &Tenant{ID: *joinedID, Name: tName, Code: tCode, Status: TenantStatus(tState)}, nil
}

func (p *pgStore) TenantByCode(ctx context.Context, code string) (Tenant, error) {
	var t Tenant
	var status string
	err := p.dbPool.QueryRow(ctx, `SELECT id::text, name, code, status FROM tenants WHERE code=$1`, code).
		Scan(&t.ID, &t.Name, &t.Code, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, fmt.Errorf("tenant code %q: %w", code, ErrNotFound)
		}
		return Tenant{}, err
	}
	t.Status = TenantStatus(status)
	return t, nil
}

func (p *pgStore) InsertTenant(ctx context.Context, t Tenant) (Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Code == "" {
		t.Code = NewCode()
	}
	if t.Status == "" {
		t.Status = TenantPending
	}
	_, err := p.dbPool.Exec(ctx, `INSERT INTO tenants(id,name,code,status) VALUES ($1,$2,$3,$4)`,
		t.ID, t.Name, t.Code, string(t.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tenant{}, ErrDuplicateCode
		}
		return Tenant{}, err
	}
	return t, nil
}

func (p *pgStore) DeleteTenant(ctx context.Context, id string) error {
	tag, err := p.dbPool.Exec(ctx, `DELETE FROM tenants WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	p.log.Infow("tenant deleted", "tenant_id", id)
	return nil
}

// UpdateProfile validates the linkage invariants before writing, then upserts
// while holding a share lock on the referenced tenant.
func (p *pgStore) UpdateProfile(ctx context.Context, prof Profile) error {
	if err := prof.Validate(); err != nil {
		return err
	}
	return db.InTx(ctx, p.dbPool, func(tx pgx.Tx) error {
		if prof.Linked() {
			var one int
			if err := tx.QueryRow(ctx, `SELECT 1 FROM tenants WHERE id=$1 FOR SHARE`, *prof.TenantID).Scan(&one); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("tenant %s: %w", *prof.TenantID, ErrNotFound)
				}
				return err
			}
		}
		_, err := tx.Exec(ctx, `
INSERT INTO profiles(id,username,role,tenant_id,status,phone) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))
ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, role=EXCLUDED.role, tenant_id=EXCLUDED.tenant_id,
  status=EXCLUDED.status, phone=EXCLUDED.phone, updated_at=NOW()`,
			prof.ID, prof.Username, string(prof.Role), prof.TenantID, string(prof.Status), prof.Phone)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return fmt.Errorf("%w: %s", ErrIntegrity, pgErr.ConstraintName)
		}
		return err
	})
}

func (p *pgStore) InsertStaffRecord(ctx context.Context, r StaffRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Position == "" {
		r.Position = "staff"
	}
	return db.InTenantTx(ctx, p.dbPool, r.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO staff(id,tenant_id,profile_id,name,phone,position) VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)`,
			r.ID, r.TenantID, r.ProfileID, r.Name, r.Phone, r.Position)
		return err
	})
}
