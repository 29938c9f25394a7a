package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"civicease/civicfeed/internal/models"
)

// GetUser loads a user by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := db.GetContext(ctx, &u, db.Rebind(`SELECT id, username, email, created_at FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &u, nil
}

// CreateUser inserts an account row. Accounts are normally created by the web application.
func (db *DB) CreateUser(ctx context.Context, username, email string) (int64, error) {
	var id int64
	err := db.QueryRowxContext(ctx,
		db.Rebind(`INSERT INTO users (username, email, created_at) VALUES (?, ?, ?) RETURNING id`),
		username, email, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return id, nil
}
