package entity

import (
	"fmt"
	"math"
)

// StarType is the kind of a display star.
type StarType string

const (
	StarFull  StarType = "full"
	StarEmpty StarType = "empty"
)

// Star is one position of the five-star row shown for a book.
type Star struct {
	Type StarType `json:"type"`
	ID   string   `json:"id"`
}

// Stars renders avg as floor(avg) full stars followed by empty ones, five in total.
// Ids are stable per book so clients can key list items on them.
func Stars(bookID string, avg float64) []Star {
	full := int(math.Floor(ClampGrade(avg)))
	stars := make([]Star, 0, MaxStars)
	for i := 0; i < full; i++ {
		stars = append(stars, Star{Type: StarFull, ID: fmt.Sprintf("%s-full-%d", bookID, i)})
	}
	for i := 0; i < MaxStars-full; i++ {
		stars = append(stars, Star{Type: StarEmpty, ID: fmt.Sprintf("%s-empty-%d", bookID, i)})
	}
	return stars
}
