package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimoire/internal/feature/auth/usecase"
)

// mockAuthUsecase is a mock implementation of the AuthUsecase interface.
type mockAuthUsecase struct {
	SignupFunc func(ctx context.Context, email, password string) error
	LoginFunc  func(ctx context.Context, email, password string) (*usecase.LoginResult, error)
}

func (m *mockAuthUsecase) Signup(ctx context.Context, email, password string) error {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, email, password)
	}
	return nil
}

func (m *mockAuthUsecase) Login(ctx context.Context, email, password string) (*usecase.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, usecase.ErrInvalidCredentials
}

func performJSON(t *testing.T, h gin.HandlerFunc, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	router := gin.New()
	router.POST(path, h)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var responseBody map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responseBody))
	return w, responseBody
}

func TestAuthHandler_Signup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestBody    gin.H
		mockSignupFunc func(ctx context.Context, email, password string) error
		expectedStatus int
		expectedBody   map[string]any
		expectedFields []string
	}{
		{
			name:           "success: user registration",
			requestBody:    gin.H{"email": "test@example.com", "password": "secret1"},
			expectedStatus: http.StatusCreated,
			expectedBody:   map[string]any{"message": "user created"},
		},
		{
			name:           "failure: invalid email address",
			requestBody:    gin.H{"email": "invalid-email", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"email"},
		},
		{
			name:           "failure: email with too long tld",
			requestBody:    gin.H{"email": "reader@example.museum", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"email"},
		},
		{
			name:           "success: short password",
			requestBody:    gin.H{"email": "test@example.com", "password": "abc"},
			expectedStatus: http.StatusCreated,
			expectedBody:   map[string]any{"message": "user created"},
		},
		{
			name:           "failure: password over 72 bytes",
			requestBody:    gin.H{"email": "test@example.com", "password": strings.Repeat("é", 40)},
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"password"},
		},
		{
			name:           "failure: password rejected by hasher",
			requestBody:    gin.H{"email": "test@example.com", "password": "password123"},
			mockSignupFunc: func(ctx context.Context, email, password string) error { return usecase.ErrPasswordTooLong },
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]any{"error": "password is too long"},
		},
		{
			name:           "failure: missing fields",
			requestBody:    gin.H{},
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"email", "password"},
		},
		{
			name:           "failure: duplicate email",
			requestBody:    gin.H{"email": "existing@example.com", "password": "password123"},
			mockSignupFunc: func(ctx context.Context, email, password string) error { return usecase.ErrEmailAlreadyExists },
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]any{"error": "email already registered"},
		},
		{
			name:           "failure: store error",
			requestBody:    gin.H{"email": "test@example.com", "password": "password123"},
			mockSignupFunc: func(ctx context.Context, email, password string) error { return errors.New("db down") },
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]any{"error": "db down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mockUC := &mockAuthUsecase{SignupFunc: func(ctx context.Context, email, password string) error {
				called = true
				if tt.mockSignupFunc != nil {
					return tt.mockSignupFunc(ctx, email, password)
				}
				return nil
			}}
			handler := NewAuthHandler(mockUC)

			w, body := performJSON(t, handler.Signup, "/api/auth/signup", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedFields != nil {
				assert.False(t, called, "usecase must not run on invalid input")
				assertFieldErrors(t, body, tt.expectedFields)
				return
			}
			assert.Equal(t, tt.expectedBody, body)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestBody    gin.H
		mockLoginFunc  func(ctx context.Context, email, password string) (*usecase.LoginResult, error)
		expectedStatus int
		expectedBody   map[string]any
		expectedFields []string
	}{
		{
			name:        "success: user login",
			requestBody: gin.H{"email": "test@example.com", "password": "password123"},
			mockLoginFunc: func(ctx context.Context, email, password string) (*usecase.LoginResult, error) {
				return &usecase.LoginResult{UserID: "user-1", Token: "dummy-jwt-token"}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]any{"userId": "user-1", "token": "dummy-jwt-token"},
		},
		{
			name:           "failure: invalid email address",
			requestBody:    gin.H{"email": "invalid-email", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"email"},
		},
		{
			name:           "failure: missing password",
			requestBody:    gin.H{"email": "test@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"password"},
		},
		{
			name:        "failure: invalid credentials",
			requestBody: gin.H{"email": "wrong@example.com", "password": "wrong-password"},
			mockLoginFunc: func(ctx context.Context, email, password string) (*usecase.LoginResult, error) {
				return nil, usecase.ErrInvalidCredentials
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   map[string]any{"error": "invalid email or password"},
		},
		{
			name:        "failure: internal error",
			requestBody: gin.H{"email": "test@example.com", "password": "password123"},
			mockLoginFunc: func(ctx context.Context, email, password string) (*usecase.LoginResult, error) {
				return nil, errors.New("failed to generate token: boom")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]any{"error": "failed to generate token: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(&mockAuthUsecase{LoginFunc: tt.mockLoginFunc})

			w, body := performJSON(t, handler.Login, "/api/auth/login", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedFields != nil {
				assertFieldErrors(t, body, tt.expectedFields)
				return
			}
			assert.Equal(t, tt.expectedBody, body)
		})
	}
}

func assertFieldErrors(t *testing.T, body map[string]any, fields []string) {
	t.Helper()

	raw, ok := body["errors"].([]any)
	require.True(t, ok, "expected an errors array, got %v", body)
	var got []string
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		require.True(t, ok)
		got = append(got, entry["field"].(string))
	}
	assert.ElementsMatch(t, fields, got)
}
