package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Script formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// ScriptVersion is one stored revision of a named script.
type ScriptVersion struct {
	ID        int64
	Name      string
	Version   int
	Hash      string // SHA-256 hex of Source
	Format    string // FormatText or FormatYAML
	Source    string
	CreatedAt time.Time
	CreatedBy string
}

// HashSource returns the hex SHA-256 of a script source.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// SaveScript stores source as the next version of name. When the latest
// version already has the same content nothing is written and that version
// is returned with created == false.
func (s *Store) SaveScript(ctx context.Context, name, format, source, createdBy string) (v *ScriptVersion, created bool, err error) {
	if name == "" {
		return nil, false, fmt.Errorf("script name must not be empty")
	}
	if format != FormatText && format != FormatYAML {
		return nil, false, fmt.Errorf("unknown script format %q", format)
	}
	hash := HashSource(source)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	latest, err := scanScript(tx.QueryRowContext(ctx, selectScript+`
		WHERE name = ? ORDER BY version DESC LIMIT 1`, name))
	switch {
	case errors.Is(err, ErrNotFound):
		latest = nil
	case err != nil:
		return nil, false, fmt.Errorf("query latest script: %w", err)
	}
	if latest != nil && latest.Hash == hash {
		return latest, false, nil
	}

	v = &ScriptVersion{
		Name:      name,
		Version:   1,
		Hash:      hash,
		Format:    format,
		Source:    source,
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
	if latest != nil {
		v.Version = latest.Version + 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO scripts (name, version, hash, format, source, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.Name, v.Version, v.Hash, v.Format, v.Source, v.CreatedAt, v.CreatedBy)
	if err != nil {
		return nil, false, fmt.Errorf("insert script: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return nil, false, fmt.Errorf("script id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit script: %w", err)
	}
	return v, true, nil
}

// GetScript returns one version of name.
func (s *Store) GetScript(ctx context.Context, name string, version int) (*ScriptVersion, error) {
	v, err := scanScript(s.db.QueryRowContext(ctx, selectScript+`
		WHERE name = ? AND version = ?`, name, version))
	if err != nil {
		return nil, fmt.Errorf("script %q version %d: %w", name, version, err)
	}
	return v, nil
}

// LatestScript returns the highest version of name.
func (s *Store) LatestScript(ctx context.Context, name string) (*ScriptVersion, error) {
	v, err := scanScript(s.db.QueryRowContext(ctx, selectScript+`
		WHERE name = ? ORDER BY version DESC LIMIT 1`, name))
	if err != nil {
		return nil, fmt.Errorf("latest script %q: %w", name, err)
	}
	return v, nil
}

// ListScripts returns every version of name, newest first. Sources are
// included.
func (s *Store) ListScripts(ctx context.Context, name string) ([]*ScriptVersion, error) {
	rows, err := s.db.QueryContext(ctx, selectScript+`
		WHERE name = ? ORDER BY version DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("query scripts: %w", err)
	}
	defer rows.Close()

	var out []*ScriptVersion
	for rows.Next() {
		v, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scripts: %w", err)
	}
	return out, nil
}

// ScriptNames returns the distinct names in the library, sorted.
func (s *Store) ScriptNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM scripts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query script names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan script name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// PruneScripts deletes all but the keep newest versions of name. keep <= 0
// deletes nothing.
func (s *Store) PruneScripts(ctx context.Context, name string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scripts
		WHERE name = ?
		  AND version NOT IN (
			  SELECT version FROM scripts
			  WHERE name = ?
			  ORDER BY version DESC
			  LIMIT ?
		  )
	`, name, name, keep)
	if err != nil {
		return 0, fmt.Errorf("prune scripts: %w", err)
	}
	return res.RowsAffected()
}

const selectScript = `
	SELECT id, name, version, hash, format, source, created_at, created_by
	FROM scripts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (*ScriptVersion, error) {
	v := &ScriptVersion{}
	err := row.Scan(&v.ID, &v.Name, &v.Version, &v.Hash, &v.Format, &v.Source, &v.CreatedAt, &v.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
