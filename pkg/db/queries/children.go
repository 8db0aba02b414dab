package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const childColumns = `id, parent_id, name, age, interests, favorite_show, created_at`

func CreateChild(ctx context.Context, child *db.Child) (*db.Child, error) {
	if child.Interests == nil {
		child.Interests = pq.StringArray{}
	}
	query := `
		INSERT INTO children (parent_id, name, age, interests, favorite_show)
		VALUES (:parent_id, :name, :age, :interests, :favorite_show)
		RETURNING id, created_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, child)
	if err != nil {
		log.Errorf("Error creating child: %v", err)
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("no rows returned after child creation")
	}
	if err := rows.StructScan(child); err != nil {
		return nil, fmt.Errorf("error scanning child after creation: %w", err)
	}
	return child, nil
}

func ListChildrenForParent(ctx context.Context, parentID uuid.UUID) ([]db.Child, error) {
	var children []db.Child
	err := db.DB.SelectContext(ctx, &children,
		`SELECT `+childColumns+` FROM children WHERE parent_id = $1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("error listing children: %w", err)
	}
	return children, nil
}

// FindChildByID returns nil, nil when the child does not exist.
func FindChildByID(ctx context.Context, id uuid.UUID) (*db.Child, error) {
	child := &db.Child{}
	err := db.DB.GetContext(ctx, child, `SELECT `+childColumns+` FROM children WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding child by ID: %w", err)
	}
	return child, nil
}

// FindChildForParent only returns the child if it belongs to parentID.
func FindChildForParent(ctx context.Context, id, parentID uuid.UUID) (*db.Child, error) {
	child := &db.Child{}
	err := db.DB.GetContext(ctx, child,
		`SELECT `+childColumns+` FROM children WHERE id = $1 AND parent_id = $2`, id, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding child for parent: %w", err)
	}
	return child, nil
}
