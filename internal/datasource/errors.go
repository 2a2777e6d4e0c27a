package datasource

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("data source not found")
	ErrNotConfigured = errors.New("data source lookup not configured")
)
