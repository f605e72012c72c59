package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/pipeline"
	"github.com/rjpower/portmap/internal/planner"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			file TEXT NOT NULL,
			line INTEGER NOT NULL,
			raw_text TEXT,
			has_body INTEGER NOT NULL,
			batch_idx INTEGER NOT NULL,
			batch_pos INTEGER NOT NULL,
			PRIMARY KEY (namespace, name)
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			from_namespace TEXT NOT NULL,
			from_name TEXT NOT NULL,
			to_namespace TEXT NOT NULL,
			to_name TEXT NOT NULL,
			PRIMARY KEY (from_namespace, from_name, to_namespace, to_name)
		);`,
		`CREATE TABLE IF NOT EXISTS externals (
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			ref TEXT NOT NULL,
			PRIMARY KEY (namespace, name, ref)
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			idx INTEGER PRIMARY KEY,
			is_cycle INTEGER NOT NULL,
			internal_deps JSON,
			external_deps JSON
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_file ON entities(file);`,
		`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_namespace, to_name);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, res *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"entities", "edges", "externals", "batches"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	entStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (namespace, name, kind, file, line, raw_text, has_body, batch_idx, batch_pos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer entStmt.Close()

	batchStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batches (idx, is_cycle, internal_deps, external_deps) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer batchStmt.Close()

	for i, b := range res.Plan.Batches {
		internal, err := json.Marshal(b.Internal)
		if err != nil {
			return err
		}
		external, err := json.Marshal(b.External)
		if err != nil {
			return err
		}
		if _, err := batchStmt.Exec(i, boolToInt(b.IsCycle), internal, external); err != nil {
			return err
		}
		for pos, e := range b.Entities {
			key := e.Key()
			if _, err := entStmt.Exec(string(key.Space), key.Name, string(e.Kind),
				e.File, e.Line, e.RawText, boolToInt(e.HasBody), i, pos); err != nil {
				return err
			}
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (from_namespace, from_name, to_namespace, to_name) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()

	for _, edge := range res.Edges {
		if _, err := edgeStmt.Exec(string(edge.From.Space), edge.From.Name,
			string(edge.To.Space), edge.To.Name); err != nil {
			return err
		}
	}

	extStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO externals (namespace, name, ref) VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer extStmt.Close()

	keys := make([]extractor.Key, 0, len(res.External))
	for k := range res.External {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Space == keys[j].Space {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Space < keys[j].Space
	})
	for _, k := range keys {
		for _, ref := range res.External[k] {
			if _, err := extStmt.Exec(string(k.Space), k.Name, ref); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadPlan(ctx context.Context) (*planner.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, is_cycle, internal_deps, external_deps FROM batches ORDER BY idx
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []planner.Batch
	for rows.Next() {
		var (
			idx, isCycle       int
			internal, external []byte
		)
		if err := rows.Scan(&idx, &isCycle, &internal, &external); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if idx != len(batches) {
			return nil, fmt.Errorf("batch rows are not contiguous at index %d", idx)
		}
		b := planner.Batch{IsCycle: isCycle != 0}
		if err := json.Unmarshal(internal, &b.Internal); err != nil {
			return nil, fmt.Errorf("failed to decode batch dependencies: %w", err)
		}
		if err := json.Unmarshal(external, &b.External); err != nil {
			return nil, fmt.Errorf("failed to decode batch dependencies: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entRows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, file, line, raw_text, has_body, batch_idx
		FROM entities ORDER BY batch_idx, batch_pos
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer entRows.Close()

	for entRows.Next() {
		var (
			e                 extractor.Entity
			kind              string
			hasBody, batchIdx int
		)
		if err := entRows.Scan(&e.Name, &kind, &e.File, &e.Line, &e.RawText, &hasBody, &batchIdx); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Kind = extractor.Kind(kind)
		e.HasBody = hasBody != 0
		if batchIdx < 0 || batchIdx >= len(batches) {
			return nil, fmt.Errorf("entity %s references unknown batch %d", e.Name, batchIdx)
		}
		batches[batchIdx].Entities = append(batches[batchIdx].Entities, &e)
	}
	if err := entRows.Err(); err != nil {
		return nil, err
	}

	return &planner.Plan{Batches: batches}, nil
}

func (s *SQLiteStore) LoadEdges(ctx context.Context) ([]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_namespace, from_name, to_namespace, to_name
		FROM edges ORDER BY from_namespace, from_name, to_namespace, to_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []graph.Edge
	for rows.Next() {
		var fromSpace, fromName, toSpace, toName string
		if err := rows.Scan(&fromSpace, &fromName, &toSpace, &toName); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, graph.Edge{
			From: extractor.Key{Space: extractor.Namespace(fromSpace), Name: fromName},
			To:   extractor.Key{Space: extractor.Namespace(toSpace), Name: toName},
		})
	}
	return edges, rows.Err()
}

func (s *SQLiteStore) LoadExternals(ctx context.Context) (map[extractor.Key][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, name, ref FROM externals ORDER BY namespace, name, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query externals: %w", err)
	}
	defer rows.Close()

	out := make(map[extractor.Key][]string)
	for rows.Next() {
		var space, name, ref string
		if err := rows.Scan(&space, &name, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan external: %w", err)
		}
		key := extractor.Key{Space: extractor.Namespace(space), Name: name}
		out[key] = append(out[key], ref)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindEntity(ctx context.Context, space extractor.Namespace, name string) (*extractor.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, kind, file, line, raw_text, has_body
		FROM entities WHERE namespace = ? AND name = ?
	`, string(space), name)
	return scanEntity(row)
}

func (s *SQLiteStore) FindEntitiesByFile(ctx context.Context, file string) ([]*extractor.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, file, line, raw_text, has_body
		FROM entities WHERE file = ? ORDER BY line, name
	`, file)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*extractor.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*extractor.Entity, error) {
	var (
		e       extractor.Entity
		kind    string
		hasBody int
	)
	if err := row.Scan(&e.Name, &kind, &e.File, &e.Line, &e.RawText, &hasBody); err != nil {
		return nil, err
	}
	e.Kind = extractor.Kind(kind)
	e.HasBody = hasBody != 0
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
