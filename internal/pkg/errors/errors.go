package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrTooMany      = errors.New("too many requests")
	ErrNoDocuments  = errors.New("no ready documents in scope")
	ErrEmbedding    = errors.New("query embedding failed")
	ErrRetrieval    = errors.New("retrieval failed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
