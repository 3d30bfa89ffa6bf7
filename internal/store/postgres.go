package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/posture-cli/internal/db"
	"github.com/sells-group/posture-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS metrics (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	owner            TEXT NOT NULL DEFAULT '',
	direction        TEXT NOT NULL,
	current_value    DOUBLE PRECISION,
	target_value     DOUBLE PRECISION,
	tolerance_low    DOUBLE PRECISION,
	tolerance_high   DOUBLE PRECISION,
	weight           DOUBLE PRECISION,
	priority_rank    INTEGER NOT NULL DEFAULT 2,
	framework_code   TEXT NOT NULL,
	function_code    TEXT NOT NULL DEFAULT '',
	category_code    TEXT NOT NULL DEFAULT '',
	subcategory_code TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT true,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_metrics_framework ON metrics(framework_code, function_code);

CREATE TABLE IF NOT EXISTS catalogs (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	name           TEXT NOT NULL,
	framework_code TEXT NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_catalogs_one_active ON catalogs(owner) WHERE active;

CREATE TABLE IF NOT EXISTS catalog_items (
	id             TEXT NOT NULL,
	catalog_id     TEXT NOT NULL REFERENCES catalogs(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	owner          TEXT NOT NULL DEFAULT '',
	direction      TEXT NOT NULL,
	current_value  DOUBLE PRECISION,
	target_value   DOUBLE PRECISION,
	tolerance_low  DOUBLE PRECISION,
	tolerance_high DOUBLE PRECISION,
	weight         DOUBLE PRECISION,
	priority_rank  INTEGER NOT NULL DEFAULT 2,
	active         BOOLEAN NOT NULL DEFAULT true,
	PRIMARY KEY (catalog_id, id)
);

CREATE TABLE IF NOT EXISTS catalog_mappings (
	item_id          TEXT NOT NULL,
	catalog_id       TEXT NOT NULL,
	function_code    TEXT NOT NULL,
	category_code    TEXT NOT NULL DEFAULT '',
	subcategory_code TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (catalog_id, item_id),
	FOREIGN KEY (catalog_id, item_id) REFERENCES catalog_items(catalog_id, id) ON DELETE CASCADE
);
`

var catalogItemColumns = []string{
	"id", "catalog_id", "name", "description", "owner", "direction",
	"current_value", "target_value", "tolerance_low", "tolerance_high",
	"weight", "priority_rank", "active",
}

var catalogMappingColumns = []string{
	"item_id", "catalog_id", "function_code", "category_code", "subcategory_code",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.MetricRow, error) {
	query := `SELECT id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, framework_code, function_code, category_code, subcategory_code, active FROM metrics WHERE true`
	args := []any{}
	argIdx := 1

	if filter.FrameworkCode != "" {
		query += fmt.Sprintf(` AND framework_code = $%d`, argIdx)
		args = append(args, filter.FrameworkCode)
		argIdx++
	}
	if filter.FunctionCode != "" {
		query += fmt.Sprintf(` AND function_code = $%d`, argIdx)
		args = append(args, filter.FunctionCode)
	}
	if filter.ActiveOnly {
		query += ` AND active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var out []model.MetricRow
	for rows.Next() {
		var r model.MetricRow
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Description, &r.Owner, &r.Direction,
			&r.CurrentValue, &r.TargetValue, &r.ToleranceLow, &r.ToleranceHigh,
			&r.Weight, &r.PriorityRank, &r.FrameworkCode, &r.FunctionCode,
			&r.CategoryCode, &r.SubcategoryCode, &r.Active,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

func (s *PostgresStore) UpsertMetric(ctx context.Context, r model.MetricRow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metrics (id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, framework_code, function_code, category_code, subcategory_code, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, owner = EXCLUDED.owner,
			direction = EXCLUDED.direction, current_value = EXCLUDED.current_value,
			target_value = EXCLUDED.target_value, tolerance_low = EXCLUDED.tolerance_low,
			tolerance_high = EXCLUDED.tolerance_high, weight = EXCLUDED.weight,
			priority_rank = EXCLUDED.priority_rank, framework_code = EXCLUDED.framework_code,
			function_code = EXCLUDED.function_code, category_code = EXCLUDED.category_code,
			subcategory_code = EXCLUDED.subcategory_code, active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.Name, r.Description, r.Owner, r.Direction,
		r.CurrentValue, r.TargetValue, r.ToleranceLow, r.ToleranceHigh,
		r.Weight, priorityOrDefault(r.PriorityRank), r.FrameworkCode, r.FunctionCode,
		r.CategoryCode, r.SubcategoryCode, r.Active, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert metric %s", r.ID)
}

func (s *PostgresStore) GetCatalog(ctx context.Context, id string) (*model.Catalog, error) {
	var c model.Catalog
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, name, framework_code, active, created_at FROM catalogs WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Owner, &c.Name, &c.FrameworkCode, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "catalog %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get catalog %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) GetActiveCatalog(ctx context.Context, owner string) (*model.Catalog, error) {
	var c model.Catalog
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, name, framework_code, active, created_at FROM catalogs WHERE owner = $1 AND active`,
		owner,
	).Scan(&c.ID, &c.Owner, &c.Name, &c.FrameworkCode, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "active catalog for %s", owner)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get active catalog for %s", owner)
	}
	return &c, nil
}

// CreateCatalog inserts an inactive catalog, assigning an ID when c has none.
func (s *PostgresStore) CreateCatalog(ctx context.Context, c model.Catalog) (*model.Catalog, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = false
	c.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO catalogs (id, owner, name, framework_code, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Owner, c.Name, c.FrameworkCode, c.Active, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert catalog")
	}
	return &c, nil
}

// CreateCatalogWithItems inserts an inactive catalog together with its items
// and mappings. Nothing is written unless all of it is.
func (s *PostgresStore) CreateCatalogWithItems(ctx context.Context, c model.Catalog, items []model.CatalogItem, mappings []model.CatalogMapping) (*model.Catalog, error) {
	if err := validateBatch(items, mappings); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = false
	c.CreatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create catalog: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO catalogs (id, owner, name, framework_code, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Owner, c.Name, c.FrameworkCode, c.Active, c.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert catalog")
	}
	if err := copyCatalogItems(ctx, tx, c.ID, items, mappings); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: create catalog: commit")
	}
	return &c, nil
}

// AddCatalogItems copies items and their mappings into a catalog in one
// transaction.
func (s *PostgresStore) AddCatalogItems(ctx context.Context, catalogID string, items []model.CatalogItem, mappings []model.CatalogMapping) error {
	if err := validateBatch(items, mappings); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: add catalog items: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM catalogs WHERE id = $1)`, catalogID).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "postgres: check catalog %s", catalogID)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "catalog %s", catalogID)
	}

	if err := copyCatalogItems(ctx, tx, catalogID, items, mappings); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: add catalog items: commit")
}

func copyCatalogItems(ctx context.Context, tx db.Copier, catalogID string, items []model.CatalogItem, mappings []model.CatalogMapping) error {
	itemRows := make([][]any, 0, len(items))
	for _, it := range items {
		itemRows = append(itemRows, []any{
			it.ID, catalogID, it.Name, it.Description, it.Owner, it.Direction,
			it.CurrentValue, it.TargetValue, it.ToleranceLow, it.ToleranceHigh,
			it.Weight, priorityOrDefault(it.PriorityRank), it.Active,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "catalog_items", catalogItemColumns, itemRows); err != nil {
		return eris.Wrap(err, "postgres: add catalog items")
	}

	mappingRows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		mappingRows = append(mappingRows, []any{
			m.ItemID, catalogID, m.FunctionCode, m.CategoryCode, m.SubcategoryCode,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "catalog_mappings", catalogMappingColumns, mappingRows); err != nil {
		return eris.Wrap(err, "postgres: add catalog mappings")
	}
	return nil
}

func (s *PostgresStore) ListCatalogItems(ctx context.Context, catalogID string) ([]model.CatalogItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, catalog_id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, active FROM catalog_items WHERE catalog_id = $1 ORDER BY id`,
		catalogID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list catalog items %s", catalogID)
	}
	defer rows.Close()

	var out []model.CatalogItem
	for rows.Next() {
		var it model.CatalogItem
		if err := rows.Scan(
			&it.ID, &it.CatalogID, &it.Name, &it.Description, &it.Owner, &it.Direction,
			&it.CurrentValue, &it.TargetValue, &it.ToleranceLow, &it.ToleranceHigh,
			&it.Weight, &it.PriorityRank, &it.Active,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list catalog items iterate")
}

func (s *PostgresStore) ListCatalogMappings(ctx context.Context, catalogID string) ([]model.CatalogMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, function_code, category_code, subcategory_code FROM catalog_mappings WHERE catalog_id = $1 ORDER BY item_id`,
		catalogID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list catalog mappings %s", catalogID)
	}
	defer rows.Close()

	var out []model.CatalogMapping
	for rows.Next() {
		var m model.CatalogMapping
		if err := rows.Scan(&m.ItemID, &m.FunctionCode, &m.CategoryCode, &m.SubcategoryCode); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog mapping")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list catalog mappings iterate")
}

// ActivateCatalog makes catalogID the owner's only active catalog.
func (s *PostgresStore) ActivateCatalog(ctx context.Context, owner, catalogID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: activate catalog: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE catalogs SET active = false WHERE owner = $1 AND active`,
		owner,
	); err != nil {
		return eris.Wrapf(err, "postgres: deactivate catalogs for %s", owner)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE catalogs SET active = true WHERE id = $1 AND owner = $2`,
		catalogID, owner,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: activate catalog %s", catalogID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "catalog %s for owner %s", catalogID, owner)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: activate catalog: commit")
}

func priorityOrDefault(p int) int {
	if p == 0 {
		return model.PriorityMedium
	}
	return p
}
