// Package service provides business logic for the application.
package service

import "errors"

// Service errors.
var (
	ErrEmptyBatch    = errors.New("batch contains no requests")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	ErrPersistence   = errors.New("failed to persist url record")
)

const (
	// DefaultValidityMinutes applies when a request leaves validity empty.
	DefaultValidityMinutes = 30

	// DefaultMaxBatchSize is the largest batch CreateBatch accepts.
	DefaultMaxBatchSize = 5
)
