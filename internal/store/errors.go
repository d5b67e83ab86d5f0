package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/corvidlabs/streamchat/internal/domain"
)

// wrapNotFound converts pgx.ErrNoRows to the matching domain sentinel,
// otherwise wraps err with operation context.
func wrapNotFound(operation string, err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("%s: %w", operation, err)
}
