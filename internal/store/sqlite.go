package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/posture-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS metrics (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	owner            TEXT NOT NULL DEFAULT '',
	direction        TEXT NOT NULL,
	current_value    REAL,
	target_value     REAL,
	tolerance_low    REAL,
	tolerance_high   REAL,
	weight           REAL,
	priority_rank    INTEGER NOT NULL DEFAULT 2,
	framework_code   TEXT NOT NULL,
	function_code    TEXT NOT NULL DEFAULT '',
	category_code    TEXT NOT NULL DEFAULT '',
	subcategory_code TEXT NOT NULL DEFAULT '',
	active           INTEGER NOT NULL DEFAULT 1,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_metrics_framework ON metrics(framework_code, function_code);

CREATE TABLE IF NOT EXISTS catalogs (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	name           TEXT NOT NULL,
	framework_code TEXT NOT NULL,
	active         INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_catalogs_one_active ON catalogs(owner) WHERE active = 1;

CREATE TABLE IF NOT EXISTS catalog_items (
	id             TEXT NOT NULL,
	catalog_id     TEXT NOT NULL REFERENCES catalogs(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	owner          TEXT NOT NULL DEFAULT '',
	direction      TEXT NOT NULL,
	current_value  REAL,
	target_value   REAL,
	tolerance_low  REAL,
	tolerance_high REAL,
	weight         REAL,
	priority_rank  INTEGER NOT NULL DEFAULT 2,
	active         INTEGER NOT NULL DEFAULT 1,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.MetricRow, error) {
	query := `SELECT id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, framework_code, function_code, category_code, subcategory_code, active FROM metrics WHERE 1=1`
	var args []any
	if filter.FrameworkCode != "" {
		query += ` AND framework_code = ?`
		args = append(args, filter.FrameworkCode)
	}
	if filter.FunctionCode != "" {
		query += ` AND function_code = ?`
		args = append(args, filter.FunctionCode)
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var out []model.MetricRow
	for rows.Next() {
		r, err := scanMetricRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

func (s *SQLiteStore) UpsertMetric(ctx context.Context, r model.MetricRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, framework_code, function_code, category_code, subcategory_code, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, description = excluded.description, owner = excluded.owner,
			direction = excluded.direction, current_value = excluded.current_value,
			target_value = excluded.target_value, tolerance_low = excluded.tolerance_low,
			tolerance_high = excluded.tolerance_high, weight = excluded.weight,
			priority_rank = excluded.priority_rank, framework_code = excluded.framework_code,
			function_code = excluded.function_code, category_code = excluded.category_code,
			subcategory_code = excluded.subcategory_code, active = excluded.active,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, r.Owner, r.Direction,
		nullFloat(r.CurrentValue), nullFloat(r.TargetValue), nullFloat(r.ToleranceLow), nullFloat(r.ToleranceHigh),
		nullFloat(r.Weight), priorityOrDefault(r.PriorityRank), r.FrameworkCode, r.FunctionCode,
		r.CategoryCode, r.SubcategoryCode, r.Active, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert metric %s", r.ID)
}

func (s *SQLiteStore) GetCatalog(ctx context.Context, id string) (*model.Catalog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, name, framework_code, active, created_at FROM catalogs WHERE id = ?`,
		id,
	)
	c, err := scanCatalog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "catalog %s", id)
	}
	return c, err
}

func (s *SQLiteStore) GetActiveCatalog(ctx context.Context, owner string) (*model.Catalog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, name, framework_code, active, created_at FROM catalogs WHERE owner = ? AND active = 1`,
		owner,
	)
	c, err := scanCatalog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "active catalog for %s", owner)
	}
	return c, err
}

// CreateCatalog inserts an inactive catalog, assigning an ID when c has none.
func (s *SQLiteStore) CreateCatalog(ctx context.Context, c model.Catalog) (*model.Catalog, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = false
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalogs (id, owner, name, framework_code, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Name, c.FrameworkCode, c.Active, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert catalog")
	}
	return &c, nil
}

// CreateCatalogWithItems inserts an inactive catalog together with its items
// and mappings. Nothing is written unless all of it is.
func (s *SQLiteStore) CreateCatalogWithItems(ctx context.Context, c model.Catalog, items []model.CatalogItem, mappings []model.CatalogMapping) (*model.Catalog, error) {
	if err := validateBatch(items, mappings); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = false
	c.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create catalog: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalogs (id, owner, name, framework_code, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Name, c.FrameworkCode, c.Active, c.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert catalog")
	}
	if err := insertCatalogItems(ctx, tx, c.ID, items, mappings); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: create catalog: commit")
	}
	return &c, nil
}

// AddCatalogItems inserts items and their mappings into a catalog in one
// transaction.
func (s *SQLiteStore) AddCatalogItems(ctx context.Context, catalogID string, items []model.CatalogItem, mappings []model.CatalogMapping) error {
	if err := validateBatch(items, mappings); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: add catalog items: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalogs WHERE id = ?`, catalogID).Scan(&exists); err != nil {
		return eris.Wrapf(err, "sqlite: check catalog %s", catalogID)
	}
	if exists == 0 {
		return eris.Wrapf(ErrNotFound, "catalog %s", catalogID)
	}

	if err := insertCatalogItems(ctx, tx, catalogID, items, mappings); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: add catalog items: commit")
}

func insertCatalogItems(ctx context.Context, tx *sql.Tx, catalogID string, items []model.CatalogItem, mappings []model.CatalogMapping) error {
	itemStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO catalog_items (id, catalog_id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare catalog item insert")
	}
	defer itemStmt.Close()

	for _, it := range items {
		if _, err := itemStmt.ExecContext(ctx,
			it.ID, catalogID, it.Name, it.Description, it.Owner, it.Direction,
			nullFloat(it.CurrentValue), nullFloat(it.TargetValue), nullFloat(it.ToleranceLow), nullFloat(it.ToleranceHigh),
			nullFloat(it.Weight), priorityOrDefault(it.PriorityRank), it.Active,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert catalog item %s", it.ID)
		}
	}

	mapStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO catalog_mappings (item_id, catalog_id, function_code, category_code, subcategory_code) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare catalog mapping insert")
	}
	defer mapStmt.Close()

	for _, m := range mappings {
		if _, err := mapStmt.ExecContext(ctx,
			m.ItemID, catalogID, m.FunctionCode, m.CategoryCode, m.SubcategoryCode,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert catalog mapping %s", m.ItemID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListCatalogItems(ctx context.Context, catalogID string) ([]model.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, catalog_id, name, description, owner, direction, current_value, target_value, tolerance_low, tolerance_high, weight, priority_rank, active FROM catalog_items WHERE catalog_id = ? ORDER BY id`,
		catalogID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list catalog items %s", catalogID)
	}
	defer rows.Close()

	var out []model.CatalogItem
	for rows.Next() {
		var it model.CatalogItem
		var cur, target, low, high, weight sql.NullFloat64
		if err := rows.Scan(
			&it.ID, &it.CatalogID, &it.Name, &it.Description, &it.Owner, &it.Direction,
			&cur, &target, &low, &high, &weight, &it.PriorityRank, &it.Active,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog item")
		}
		it.CurrentValue = floatPtr(cur)
		it.TargetValue = floatPtr(target)
		it.ToleranceLow = floatPtr(low)
		it.ToleranceHigh = floatPtr(high)
		it.Weight = floatPtr(weight)
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list catalog items iterate")
}

func (s *SQLiteStore) ListCatalogMappings(ctx context.Context, catalogID string) ([]model.CatalogMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, function_code, category_code, subcategory_code FROM catalog_mappings WHERE catalog_id = ? ORDER BY item_id`,
		catalogID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list catalog mappings %s", catalogID)
	}
	defer rows.Close()

	var out []model.CatalogMapping
	for rows.Next() {
		var m model.CatalogMapping
		if err := rows.Scan(&m.ItemID, &m.FunctionCode, &m.CategoryCode, &m.SubcategoryCode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog mapping")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list catalog mappings iterate")
}

// ActivateCatalog makes catalogID the owner's only active catalog.
func (s *SQLiteStore) ActivateCatalog(ctx context.Context, owner, catalogID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: activate catalog: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE catalogs SET active = 0 WHERE owner = ? AND active = 1`,
		owner,
	); err != nil {
		return eris.Wrapf(err, "sqlite: deactivate catalogs for %s", owner)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE catalogs SET active = 1 WHERE id = ? AND owner = ?`,
		catalogID, owner,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: activate catalog %s", catalogID)
	}
	if err := checkRowsAffected(res, "catalog", catalogID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: activate catalog: commit")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMetricRow(row scannable) (model.MetricRow, error) {
	var r model.MetricRow
	var cur, target, low, high, weight sql.NullFloat64
	if err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Owner, &r.Direction,
		&cur, &target, &low, &high, &weight,
		&r.PriorityRank, &r.FrameworkCode, &r.FunctionCode,
		&r.CategoryCode, &r.SubcategoryCode, &r.Active,
	); err != nil {
		return r, eris.Wrap(err, "sqlite: scan metric")
	}
	r.CurrentValue = floatPtr(cur)
	r.TargetValue = floatPtr(target)
	r.ToleranceLow = floatPtr(low)
	r.ToleranceHigh = floatPtr(high)
	r.Weight = floatPtr(weight)
	return r, nil
}

func scanCatalog(row scannable) (*model.Catalog, error) {
	var c model.Catalog
	err := row.Scan(&c.ID, &c.Owner, &c.Name, &c.FrameworkCode, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan catalog")
	}
	return &c, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
