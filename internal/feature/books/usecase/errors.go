// Package usecase implements the business logic for the books feature.
package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps every rejected book field or grade.
	ErrValidation = errors.New("validation failed")

	// ErrBookNotFound is returned when no book matches the requested id.
	ErrBookNotFound = errors.New("book not found")

	// ErrForbidden is returned when the caller does not own the book.
	ErrForbidden = errors.New("forbidden: you do not own this book")

	// ErrDuplicateRating is returned when the caller already rated the book.
	ErrDuplicateRating = errors.New("user has already rated this book")

	// ErrImageRequired is returned by Create when no cover was uploaded.
	ErrImageRequired = fmt.Errorf("%w: image is required", ErrValidation)
)
