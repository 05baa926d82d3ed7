package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/thereayou/groupchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database backs the identity store, the group registry and the channel
// registry. Every exported mutation touches exactly one row and runs in its
// own transaction, which is the unit of atomicity for the whole core.
// errUnchanged aborts a mutation without saving; callers translate it.
var errUnchanged = errors.New("unchanged")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// mutate loads the row identified by id under a row lock, hands it to fn and
// saves it back when fn succeeds. missing is returned when the row is absent.
func mutate[T any](ctx context.Context, db *gorm.DB, id models.ID, missing error, fn func(*T) error) (*T, error) {
	var row T
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return missing
		}
		if err != nil {
			return err
		}
		if err := fn(&row); err != nil {
			return err
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func find[T any](ctx context.Context, db *gorm.DB, missing error, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &row, nil
}
