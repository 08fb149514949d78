package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"grimoire/internal/feature/books/domain/entity"
)

// readOnlyFields may never appear in an update body.
var readOnlyFields = []string{"ratings", "averageRating", "userId", "id", "_id"}

// FlexInt accepts a JSON number or a numeric string.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v != math.Trunc(v) || math.IsInf(v, 0) {
		return fmt.Errorf("year must be an integer, got %s", string(b))
	}
	*f = FlexInt(v)
	return nil
}

// CreateBookReq is the JSON carried in the "book" form field of POST /api/books.
type CreateBookReq struct {
	Title         string   `json:"title" binding:"required"`
	Author        string   `json:"author" binding:"required"`
	Year          FlexInt  `json:"year" binding:"gte=0"`
	Genre         string   `json:"genre" binding:"required"`
	AverageRating *float64 `json:"averageRating"`
}

// UpdateBookReq is a partial update. Absent fields are left untouched.
type UpdateBookReq struct {
	Title  *string  `json:"title"`
	Author *string  `json:"author"`
	Year   *FlexInt `json:"year"`
	Genre  *string  `json:"genre"`
}

// ErrReadOnlyField is returned when an update body tries to set a managed field.
var ErrReadOnlyField = errors.New("field cannot be updated")

// DecodeUpdate parses an update body, rejecting read-only fields.
// An empty body is an empty update.
func DecodeUpdate(raw []byte) (UpdateBookReq, error) {
	var req UpdateBookReq
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return req, err
	}
	for _, k := range readOnlyFields {
		if _, ok := keys[k]; ok {
			return req, fmt.Errorf("%w: %s", ErrReadOnlyField, k)
		}
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

// Patch converts the request into a domain patch.
func (r UpdateBookReq) Patch() entity.Patch {
	p := entity.Patch{Title: r.Title, Author: r.Author, Genre: r.Genre}
	if r.Year != nil {
		y := int(*r.Year)
		p.Year = &y
	}
	return p
}

// RateReq is the body of POST /api/books/:id/rating. A userId sent by the
// client is ignored; the rater is the authenticated user.
type RateReq struct {
	Rating *float64 `json:"rating" binding:"required"`
}
