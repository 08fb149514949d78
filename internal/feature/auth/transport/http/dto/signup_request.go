// Package dto defines data transfer objects for the auth feature's HTTP transport layer.
package dto

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// accountEmailPattern is the address shape accepted for accounts.
var accountEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,4}$`)

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("account_email", func(fl validator.FieldLevel) bool {
			return accountEmailPattern.MatchString(fl.Field().String())
		})
		// max counts runes; bcrypt's limit is in bytes.
		_ = v.RegisterValidation("password_bytes", func(fl validator.FieldLevel) bool {
			return len(fl.Field().String()) <= MaxPasswordBytes
		})
	}
}

// SignupReq represents the request body for the /api/auth/signup endpoint.
type SignupReq struct {
	Email    string `json:"email" binding:"required,email,account_email"`
	Password string `json:"password" binding:"required,password_bytes"`
}

// SignupRes is the body of a successful signup.
type SignupRes struct {
	Message string `json:"message"`
}
