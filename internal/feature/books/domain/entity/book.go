// Package entity defines the Book aggregate and its rating rules.
package entity

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// MinGrade and MaxGrade bound every grade and every average.
	MinGrade = 0.0
	MaxGrade = 5.0

	// MaxStars is the length of a star row.
	MaxStars = 5
)

var (
	// ErrAlreadyRated is returned when a user rates the same book twice.
	ErrAlreadyRated = errors.New("user has already rated this book")

	// ErrGradeOutOfRange is returned for grades outside [0, 5].
	ErrGradeOutOfRange = fmt.Errorf("grade must be between %g and %g", MinGrade, MaxGrade)
)

// Rating is one user's grade for a book.
type Rating struct {
	UserID string  `json:"userId"`
	Grade  float64 `json:"grade"`
}

// Book is a catalogued book together with its ratings.
// AverageRating always equals AverageOf(Ratings).
type Book struct {
	ID            string
	OwnerID       string
	Title         string
	Author        string
	ImageURL      string
	ImageKey      string
	Year          int
	Genre         string
	Ratings       []Rating
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Details are the descriptive fields supplied by the owner.
type Details struct {
	Title  string
	Author string
	Year   int
	Genre  string
}

// Image identifies a stored cover.
type Image struct {
	Key string
	URL string
}

// Patch is a partial update. Nil fields are left untouched.
// Ratings, average and owner are not patchable.
type Patch struct {
	Title    *string
	Author   *string
	Year     *int
	Genre    *string
	ImageURL *string
	ImageKey *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Author == nil && p.Year == nil && p.Genre == nil &&
		p.ImageURL == nil && p.ImageKey == nil
}

// NewBook builds a book owned by ownerID whose single seed rating is the
// owner's clamped initial grade.
func NewBook(id, ownerID string, d Details, img Image, seed float64, now time.Time) *Book {
	grade := ClampGrade(seed)
	return &Book{
		ID:            id,
		OwnerID:       ownerID,
		Title:         d.Title,
		Author:        d.Author,
		Year:          d.Year,
		Genre:         d.Genre,
		ImageURL:      img.URL,
		ImageKey:      img.Key,
		Ratings:       []Rating{{UserID: ownerID, Grade: grade}},
		AverageRating: grade,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// OwnedBy reports whether userID created the book.
func (b *Book) OwnedBy(userID string) bool {
	return userID != "" && b.OwnerID == userID
}

// HasRated reports whether userID already has a rating on the book.
func (b *Book) HasRated(userID string) bool {
	for _, r := range b.Ratings {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// AddRating appends userID's grade and recomputes the average.
func (b *Book) AddRating(userID string, grade float64) error {
	if !ValidGrade(grade) {
		return ErrGradeOutOfRange
	}
	if b.HasRated(userID) {
		return ErrAlreadyRated
	}
	b.Ratings = append(b.Ratings, Rating{UserID: userID, Grade: grade})
	b.AverageRating = AverageOf(b.Ratings)
	return nil
}

// Apply copies the non-nil patch fields onto the book.
func (b *Book) Apply(p Patch) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Year != nil {
		b.Year = *p.Year
	}
	if p.Genre != nil {
		b.Genre = *p.Genre
	}
	if p.ImageURL != nil {
		b.ImageURL = *p.ImageURL
	}
	if p.ImageKey != nil {
		b.ImageKey = *p.ImageKey
	}
}

// ValidGrade reports whether v lies in [0, 5]. NaN is rejected.
func ValidGrade(v float64) bool {
	return v >= MinGrade && v <= MaxGrade
}

// ClampGrade forces v into [0, 5]; NaN becomes 0.
func ClampGrade(v float64) float64 {
	if math.IsNaN(v) {
		return MinGrade
	}
	return math.Max(MinGrade, math.Min(MaxGrade, v))
}

// RoundAverage rounds v to two decimals, half away from zero.
func RoundAverage(v float64) float64 {
	return math.Round(v*100) / 100
}

// AverageOf is the rounded mean of all grades, 0 when there are none.
func AverageOf(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratings {
		sum += r.Grade
	}
	return RoundAverage(sum / float64(len(ratings)))
}
