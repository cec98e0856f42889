package model

import "errors"

var (
	// ErrEmptyFormData is returned when form data is nil or empty.
	ErrEmptyFormData = errors.New("form data cannot be empty")
	// ErrFormNotFound is returned when a form is not found in the database.
	ErrFormNotFound = errors.New("form not found")
	// ErrInboxItemNotFound is returned when an inbox item is not found for a form ID.
	ErrInboxItemNotFound = errors.New("inbox item not found")
)
