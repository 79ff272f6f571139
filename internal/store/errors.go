package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Ledger store error kinds.
var (
	// ErrNotFound indicates a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation (slug, code, plan name, discord id).
	ErrDuplicate = errors.New("duplicate")
	// ErrValidation indicates rejected user input at a boundary.
	ErrValidation = errors.New("validation rejected")
)

// translateFind maps GORM lookup errors onto store error kinds.
func translateFind(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// translateCreate maps uniqueness violations onto ErrDuplicate.
func translateCreate(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicateErr(err) {
		return ErrDuplicate
	}
	return err
}

func isDuplicateErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique")
}
