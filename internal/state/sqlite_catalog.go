package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/catalog"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveIntegration registers or replaces a persisted integration.
func (s *SQLiteStore) SaveIntegration(ctx context.Context, in catalog.Integration) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return s.saveIntegration(ctx, s.db, in)
}

func (s *SQLiteStore) saveIntegration(ctx context.Context, db execer, in catalog.Integration) error {
	if err := catalog.New().AddIntegration(in); err != nil {
		return err
	}
	kind, err := catalog.ParseKind(string(in.Kind))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO integrations (name, kind, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET kind = excluded.kind`,
		in.Name, string(kind), s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save integration %s: %w", in.Name, err)
	}
	return nil
}

// SavePredictor registers or replaces a persisted predictor.
func (s *SQLiteStore) SavePredictor(ctx context.Context, p catalog.Predictor) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return s.savePredictor(ctx, s.db, p)
}

func (s *SQLiteStore) savePredictor(ctx context.Context, db execer, p catalog.Predictor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	groupBy, err := json.Marshal(nonNil(p.GroupBy))
	if err != nil {
		return fmt.Errorf("failed to encode group_by: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO predictors (namespace, name, timeseries, order_by, group_by, window_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, name) DO UPDATE SET
		   timeseries = excluded.timeseries,
		   order_by = excluded.order_by,
		   group_by = excluded.group_by,
		   window_size = excluded.window_size`,
		p.Namespace, p.Name, p.Timeseries, p.OrderBy, string(groupBy), p.Window, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save predictor %s: %w", p.FullName(), err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ImportCatalog persists every integration and predictor of c in one
// transaction and returns the number of entries written. The reserved
// predictor namespace is not stored.
func (s *SQLiteStore) ImportCatalog(ctx context.Context, c *catalog.Catalog) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, in := range c.Integrations() {
			if strings.EqualFold(in.Name, catalog.DefaultPredictorNamespace) {
				continue
			}
			if err := s.saveIntegration(ctx, tx, in); err != nil {
				return err
			}
			n++
		}
		for _, p := range c.Predictors() {
			if err := s.savePredictor(ctx, tx, p); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Remove deletes a persisted predictor (namespace.name) or an integration
// together with its predictors. It reports whether anything was deleted.
func (s *SQLiteStore) Remove(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if i := strings.LastIndex(name, "."); i >= 0 {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM predictors WHERE namespace = ? AND name = ?`, name[:i], name[i+1:])
			if err != nil {
				return fmt.Errorf("failed to remove predictor %s: %w", name, err)
			}
			removed = affected(res) > 0
			return nil
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM integrations WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("failed to remove integration %s: %w", name, err)
		}
		n := affected(res)
		res, err = tx.ExecContext(ctx, `DELETE FROM predictors WHERE namespace = ?`, name)
		if err != nil {
			return fmt.Errorf("failed to remove predictors of %s: %w", name, err)
		}
		removed = n+affected(res) > 0
		return nil
	})
	return removed, err
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// LoadCatalog builds a catalog from the persisted entries, integrations in
// the order they were first added.
func (s *SQLiteStore) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	c := catalog.New()

	rows, err := s.db.QueryContext(ctx, `SELECT name, kind FROM integrations ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var in catalog.Integration
		var kind string
		if err := rows.Scan(&in.Name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		in.Kind = catalog.Kind(kind)
		if err := c.AddIntegration(in); err != nil {
			return nil, fmt.Errorf("persisted integration %s: %w", in.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}

	prows, err := s.db.QueryContext(ctx,
		`SELECT namespace, name, timeseries, order_by, group_by, window_size FROM predictors ORDER BY namespace, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictors: %w", err)
	}
	defer func() { _ = prows.Close() }()
	for prows.Next() {
		var p catalog.Predictor
		var groupBy string
		if err := prows.Scan(&p.Namespace, &p.Name, &p.Timeseries, &p.OrderBy, &groupBy, &p.Window); err != nil {
			return nil, fmt.Errorf("failed to scan predictor: %w", err)
		}
		if err := json.Unmarshal([]byte(groupBy), &p.GroupBy); err != nil {
			return nil, fmt.Errorf("predictor %s: invalid group_by: %w", p.FullName(), err)
		}
		if len(p.GroupBy) == 0 {
			p.GroupBy = nil
		}
		if err := c.AddPredictor(p); err != nil {
			return nil, fmt.Errorf("persisted predictor: %w", err)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list predictors: %w", err)
	}
	return c, nil
}
