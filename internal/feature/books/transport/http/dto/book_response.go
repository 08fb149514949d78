// Package dto defines data transfer objects for the books feature's HTTP transport layer.
package dto

import "grimoire/internal/feature/books/domain/entity"

// RatingRes is one rating in a book body.
type RatingRes struct {
	UserID string  `json:"userId"`
	Grade  float64 `json:"grade"`
}

// BookRes is the formatted book returned by every books endpoint.
// The id is exposed both as _id and id for existing clients.
type BookRes struct {
	MongoID       string        `json:"_id"`
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Author        string        `json:"author"`
	ImageURL      string        `json:"imageUrl"`
	Year          int           `json:"year"`
	Genre         string        `json:"genre"`
	AverageRating float64       `json:"averageRating"`
	Ratings       []RatingRes   `json:"ratings"`
	Stars         []entity.Star `json:"stars"`
	UserID        string        `json:"userId"`
}

// UpdateRes is the body of a successful update.
type UpdateRes struct {
	Message string  `json:"message"`
	Book    BookRes `json:"book"`
}

// NewBookRes formats b for the wire.
func NewBookRes(b *entity.Book) BookRes {
	ratings := make([]RatingRes, 0, len(b.Ratings))
	for _, r := range b.Ratings {
		ratings = append(ratings, RatingRes{UserID: r.UserID, Grade: r.Grade})
	}
	return BookRes{
		MongoID:       b.ID,
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		ImageURL:      b.ImageURL,
		Year:          b.Year,
		Genre:         b.Genre,
		AverageRating: b.AverageRating,
		Ratings:       ratings,
		Stars:         entity.Stars(b.ID, b.AverageRating),
		UserID:        b.OwnerID,
	}
}

// NewBookList formats books, always as a JSON array.
func NewBookList(books []entity.Book) []BookRes {
	out := make([]BookRes, 0, len(books))
	for i := range books {
		out = append(out, NewBookRes(&books[i]))
	}
	return out
}
