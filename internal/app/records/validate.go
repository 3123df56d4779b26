package records

import (
	"strings"

	"recordstore/internal/store"
)

// FieldError describes a single validation failure.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is the result of validating an input.
type FieldErrors []FieldError

func (errs FieldErrors) String() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

func validateCreate(in CreateInput) FieldErrors {
	return validateRecord(store.Record{
		Artist:   in.Artist,
		Album:    in.Album,
		Price:    in.Price,
		Quantity: in.Quantity,
		Format:   in.Format,
		Category: in.Category,
	})
}

// validateRecord checks the catalog invariants on a fully merged record.
func validateRecord(rec store.Record) FieldErrors {
	var errs FieldErrors

	if strings.TrimSpace(rec.Artist) == "" {
		errs = append(errs, FieldError{Field: "artist", Message: "is required"})
	}
	if strings.TrimSpace(rec.Album) == "" {
		errs = append(errs, FieldError{Field: "album", Message: "is required"})
	}
	if rec.Price < 0 {
		errs = append(errs, FieldError{Field: "price", Message: "must not be negative"})
	}
	if rec.Quantity < 0 {
		errs = append(errs, FieldError{Field: "qty", Message: "must not be negative"})
	}
	if !rec.Format.Valid() {
		errs = append(errs, FieldError{Field: "format", Message: "is not a known format"})
	}
	if !rec.Category.Valid() {
		errs = append(errs, FieldError{Field: "category", Message: "is not a known category"})
	}

	return errs
}
