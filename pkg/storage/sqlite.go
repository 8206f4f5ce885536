package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

//go:embed sqlite_schema.sql
var schemaSQL string

// SQLiteStore implements Store on top of SQLite, following the teacher's WAL
// + single-connection idiom (gateway-controller/pkg/storage/sqlite.go) to
// sidestep "database is locked" errors under concurrent admin writes.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and migrates) a SQLite-backed Store at dbPath.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrapStorage("open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema creates tables if absent and runs the ordered migration
// steps guarding column additions behind PRAGMA user_version, per spec.md
// §4.1's "ensure columns exist, backfill default_config from legacy config".
func (s *SQLiteStore) ensureSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return wrapStorage("create schema", err)
	}

	var version int
	if err := s.db.Get(&version, "PRAGMA user_version"); err != nil {
		return wrapStorage("read schema version", err)
	}

	migrations := []func() error{
		s.migrateEnsurePolicyColumns,
		s.migrateBackfillDefaultConfig,
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return wrapStorage(fmt.Sprintf("migration step %d", i), err)
		}
	}
	if len(migrations) > version {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
			return wrapStorage("bump schema version", err)
		}
	}
	return nil
}

// migrateEnsurePolicyColumns adds any of supported_stages/config_schema/
// default_config missing from an older policies table (documented defaults:
// '[]' for stages, '{}' for the two JSON objects).
func (s *SQLiteStore) migrateEnsurePolicyColumns() error {
	existing := map[string]bool{}
	rows, err := s.db.Queryx("PRAGMA table_info(policies)")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = true
	}

	wanted := []struct{ name, ddl string }{
		{"supported_stages", "ALTER TABLE policies ADD COLUMN supported_stages TEXT NOT NULL DEFAULT '[]'"},
		{"config_schema", "ALTER TABLE policies ADD COLUMN config_schema TEXT NOT NULL DEFAULT '{}'"},
		{"default_config", "ALTER TABLE policies ADD COLUMN default_config TEXT NOT NULL DEFAULT '{}'"},
	}
	for _, w := range wanted {
		if existing[w.name] {
			continue
		}
		if _, err := s.db.Exec(w.ddl); err != nil {
			return err
		}
		s.logger.Info("added missing policy column", slog.String("column", w.name))
	}
	return nil
}

// migrateBackfillDefaultConfig copies a legacy single "config" column's
// value into default_config wherever default_config is still empty/'{}'.
// The legacy column itself may not exist; that is not an error.
func (s *SQLiteStore) migrateBackfillDefaultConfig() error {
	var hasLegacy bool
	rows, err := s.db.Queryx("PRAGMA table_info(policies)")
	if err != nil {
		return err
	}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == "config" {
			hasLegacy = true
		}
	}
	rows.Close()
	if !hasLegacy {
		return nil
	}
	_, err = s.db.Exec(`UPDATE policies SET default_config = config
		WHERE (default_config IS NULL OR default_config = '' OR default_config = '{}')
		  AND config IS NOT NULL AND config != ''`)
	return err
}

type policyRow struct {
	ID              string `db:"id"`
	Version         string `db:"version"`
	WasmURI         string `db:"wasm_uri"`
	SHA256          string `db:"sha256"`
	SupportedStages string `db:"supported_stages"`
	ConfigSchema    string `db:"config_schema"`
	DefaultConfig   string `db:"default_config"`
}

func toPolicyRow(p *model.PolicySpec) (*policyRow, error) {
	stages, err := json.Marshal(p.SupportedStages)
	if err != nil {
		return nil, err
	}
	schema, err := json.Marshal(p.ConfigSchema)
	if err != nil {
		return nil, err
	}
	defCfg, err := json.Marshal(p.ResolvedDefaultConfig())
	if err != nil {
		return nil, err
	}
	return &policyRow{
		ID: p.ID, Version: p.Version, WasmURI: p.WasmURI, SHA256: p.SHA256,
		SupportedStages: string(stages), ConfigSchema: string(schema), DefaultConfig: string(defCfg),
	}, nil
}

func (r *policyRow) toModel() (*model.PolicySpec, error) {
	p := &model.PolicySpec{ID: r.ID, Version: r.Version, WasmURI: r.WasmURI, SHA256: r.SHA256}
	if err := json.Unmarshal([]byte(r.SupportedStages), &p.SupportedStages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.ConfigSchema), &p.ConfigSchema); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.DefaultConfig), &p.DefaultConfig); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) InsertPolicy(ctx context.Context, p *model.PolicySpec) error {
	row, err := toPolicyRow(p)
	if err != nil {
		return wrapStorage("marshal policy", err)
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO policies
		(id, version, wasm_uri, sha256, supported_stages, config_schema, default_config)
		VALUES (:id, :version, :wasm_uri, :sha256, :supported_stages, :config_schema, :default_config)`, row)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return gwerrors.ErrConflict
		}
		return wrapStorage("insert policy", err)
	}
	return nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]*model.PolicySpec, error) {
	var rows []policyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, version, wasm_uri, sha256, supported_stages, config_schema, default_config FROM policies ORDER BY id, version`); err != nil {
		return nil, wrapStorage("list policies", err)
	}
	out := make([]*model.PolicySpec, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, wrapStorage("decode policy", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLiteStore) GetPolicy(ctx context.Context, id, version string) ([]*model.PolicySpec, error) {
	var rows []policyRow
	var err error
	if version == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, version, wasm_uri, sha256, supported_stages, config_schema, default_config FROM policies WHERE id = ? ORDER BY version`, id)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, version, wasm_uri, sha256, supported_stages, config_schema, default_config FROM policies WHERE id = ? AND version = ?`, id, version)
	}
	if err != nil {
		return nil, wrapStorage("get policy", err)
	}
	if len(rows) == 0 {
		return nil, gwerrors.ErrNotFound
	}
	out := make([]*model.PolicySpec, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, wrapStorage("decode policy", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLiteStore) GetPolicyVersion(ctx context.Context, id, version string) (*model.PolicySpec, error) {
	var row policyRow
	err := s.db.GetContext(ctx, &row, `SELECT id, version, wasm_uri, sha256, supported_stages, config_schema, default_config FROM policies WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		if isNoRowsErr(err) {
			return nil, nil
		}
		return nil, wrapStorage("get policy version", err)
	}
	return row.toModel()
}

type routeRow struct {
	ID         string `db:"id"`
	MatchRules string `db:"match_rules"`
	Upstreams  string `db:"upstreams"`
	LB         string `db:"lb"`
	Failover   string `db:"failover"`
	Policies   string `db:"policies"`
}

func toRouteRow(r *model.RouteSpec) (*routeRow, error) {
	match, err := json.Marshal(r.MatchRules)
	if err != nil {
		return nil, err
	}
	ups, err := json.Marshal(r.Upstreams)
	if err != nil {
		return nil, err
	}
	pols, err := json.Marshal(r.Policies)
	if err != nil {
		return nil, err
	}
	return &routeRow{ID: r.ID, MatchRules: string(match), Upstreams: string(ups), LB: r.LB, Failover: r.Failover, Policies: string(pols)}, nil
}

func (r *routeRow) toModel() (*model.RouteSpec, error) {
	spec := &model.RouteSpec{ID: r.ID, LB: r.LB, Failover: r.Failover}
	if err := json.Unmarshal([]byte(r.MatchRules), &spec.MatchRules); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Upstreams), &spec.Upstreams); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Policies), &spec.Policies); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *SQLiteStore) InsertRoute(ctx context.Context, r *model.RouteSpec) error {
	row, err := toRouteRow(r)
	if err != nil {
		return wrapStorage("marshal route", err)
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO routes (id, match_rules, upstreams, lb, failover, policies)
		VALUES (:id, :match_rules, :upstreams, :lb, :failover, :policies)`, row)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return gwerrors.ErrConflict
		}
		return wrapStorage("insert route", err)
	}
	return nil
}

func (s *SQLiteStore) ListRoutes(ctx context.Context) ([]*model.RouteSpec, error) {
	var rows []routeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, match_rules, upstreams, lb, failover, policies FROM routes ORDER BY id`); err != nil {
		return nil, wrapStorage("list routes", err)
	}
	out := make([]*model.RouteSpec, 0, len(rows))
	for _, r := range rows {
		spec, err := r.toModel()
		if err != nil {
			return nil, wrapStorage("decode route", err)
		}
		out = append(out, spec)
	}
	return out, nil
}

func (s *SQLiteStore) GetRoute(ctx context.Context, id string) (*model.RouteSpec, error) {
	var row routeRow
	err := s.db.GetContext(ctx, &row, `SELECT id, match_rules, upstreams, lb, failover, policies FROM routes WHERE id = ?`, id)
	if err != nil {
		if isNoRowsErr(err) {
			return nil, gwerrors.ErrNotFound
		}
		return nil, wrapStorage("get route", err)
	}
	return row.toModel()
}

func (s *SQLiteStore) UpdateRoute(ctx context.Context, r *model.RouteSpec) (int64, error) {
	row, err := toRouteRow(r)
	if err != nil {
		return 0, wrapStorage("marshal route", err)
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE routes SET match_rules = :match_rules, upstreams = :upstreams,
		lb = :lb, failover = :failover, policies = :policies WHERE id = :id`, row)
	if err != nil {
		return 0, wrapStorage("update route", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorage("update route rows affected", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteRoute(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return wrapStorage("delete route", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage("delete route rows affected", err)
	}
	if n == 0 {
		return gwerrors.ErrNotFound
	}
	return nil
}

// Snapshot reads routes and every policy they reference inside a single
// read transaction, giving the Snapshot Builder a consistent read-set even
// under concurrent admin writes (spec.md §9 Open Question, resolved).
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]*model.RouteSpec, map[model.PolicyKey]*model.PolicySpec, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, wrapStorage("begin snapshot tx", err)
	}
	defer tx.Rollback()

	var routeRows []routeRow
	if err := tx.SelectContext(ctx, &routeRows, `SELECT id, match_rules, upstreams, lb, failover, policies FROM routes ORDER BY id`); err != nil {
		return nil, nil, wrapStorage("snapshot list routes", err)
	}
	routes := make([]*model.RouteSpec, 0, len(routeRows))
	needed := map[model.PolicyKey]bool{}
	for _, rr := range routeRows {
		spec, err := rr.toModel()
		if err != nil {
			return nil, nil, wrapStorage("snapshot decode route", err)
		}
		routes = append(routes, spec)
		for _, b := range spec.Policies {
			needed[model.PolicyKey{ID: b.ID, Version: b.Version}] = true
		}
	}

	policies := make(map[model.PolicyKey]*model.PolicySpec, len(needed))
	for key := range needed {
		var pr policyRow
		err := tx.GetContext(ctx, &pr, `SELECT id, version, wasm_uri, sha256, supported_stages, config_schema, default_config FROM policies WHERE id = ? AND version = ?`, key.ID, key.Version)
		if err != nil {
			if isNoRowsErr(err) {
				continue // missing reference is a SnapshotBuild-time concern, not a storage error
			}
			return nil, nil, wrapStorage("snapshot get policy", err)
		}
		p, err := pr.toModel()
		if err != nil {
			return nil, nil, wrapStorage("snapshot decode policy", err)
		}
		policies[key] = p
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, wrapStorage("commit snapshot tx", err)
	}
	return routes, policies, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
