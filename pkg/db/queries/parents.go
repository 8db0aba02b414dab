package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	log "github.com/sirupsen/logrus"
)

const parentColumns = `id, name, email, password_hash, created_at, updated_at`

// CreateParent inserts a parent account and fills in the generated fields.
func CreateParent(ctx context.Context, parent *db.Parent) (*db.Parent, error) {
	query := `
		INSERT INTO parents (name, email, password_hash)
		VALUES (:name, :email, :password_hash)
		RETURNING id, created_at, updated_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, parent)
	if err != nil {
		log.Errorf("Error creating parent: %v", err)
		return nil, fmt.Errorf("failed to create parent: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("no rows returned after parent creation")
	}
	if err := rows.StructScan(parent); err != nil {
		return nil, fmt.Errorf("error scanning parent after creation: %w", err)
	}

	log.Infof("Parent %s created with ID: %s", parent.Email, parent.ID.String())
	return parent, nil
}

// FindParentByEmail returns nil, nil when no parent has that email.
func FindParentByEmail(ctx context.Context, email string) (*db.Parent, error) {
	parent := &db.Parent{}
	err := db.DB.GetContext(ctx, parent, `SELECT `+parentColumns+` FROM parents WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Parent with email '%s' not found.", email)
			return nil, nil
		}
		return nil, fmt.Errorf("error finding parent by email: %w", err)
	}
	return parent, nil
}
