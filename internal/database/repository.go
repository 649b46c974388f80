package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"coshub/models"
)

// ProfileRepository stores the collection in sqlite. Each profile is one row
// carrying its serialized document; the collection contract is still
// whole-collection replacement, so writes swap every row in one transaction.
type ProfileRepository struct {
	conn *sql.DB
}

// NewProfileRepository creates a repository over an open connection.
func NewProfileRepository(conn *sql.DB) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// ReadAll returns the stored collection in insertion order.
func (r *ProfileRepository) ReadAll(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.conn.QueryContext(ctx,
		"SELECT document FROM profiles ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		var profile models.Profile
		if err := json.Unmarshal([]byte(document), &profile); err != nil {
			return nil, fmt.Errorf("decode profile document: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// ReplaceAll swaps the stored collection for the given one.
func (r *ProfileRepository) ReplaceAll(ctx context.Context, profiles []models.Profile) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM profiles"); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO profiles (id, username, position, document) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, profile := range profiles {
		document, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", profile.Username, err)
		}
		if _, err := stmt.ExecContext(ctx, profile.ID, profile.Username, i, string(document)); err != nil {
			return fmt.Errorf("insert profile %s: %w", profile.Username, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// DeleteAll drops every stored profile.
func (r *ProfileRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.conn.ExecContext(ctx, "DELETE FROM profiles"); err != nil {
		return fmt.Errorf("delete profiles: %w", err)
	}
	return nil
}
