package db

import "errors"

// ErrNotFound is returned by single-row lookups that found nothing.
// Higher layers translate it into apperr.NotFound; the ledger itself
// stays independent of the HTTP-facing error taxonomy.
var ErrNotFound = errors.New("db: not found")
