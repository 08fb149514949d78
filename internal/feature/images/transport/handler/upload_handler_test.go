package handler

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, file *filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormFileField, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// captured is what the terminal handler observed.
type captured struct {
	reached    bool
	upload     bool
	filename   string
	content    string
	validation string
	form       string
}

func serve(t *testing.T, h *UploadHandler, req *http.Request) (*httptest.ResponseRecorder, *captured) {
	t.Helper()

	got := &captured{}
	router := gin.New()
	router.POST("/upload", h.Accept(), func(c *gin.Context) {
		got.reached = true
		if up, ok := UploadFrom(c); ok {
			got.upload = true
			got.filename = up.Filename
			rc, err := up.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			got.content = string(b)
		}
		got.validation, _ = ValidationError(c)
		got.form = c.PostForm("book")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, got
}

func TestUploadHandler_Accept(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("accepted image is recorded", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"book": `{"title":"Dune"}`},
			&filePart{name: "dune.png", contentType: "image/png", data: []byte("png-bytes")})

		w, got := serve(t, NewUploadHandler(1024), req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, got.upload)
		assert.Equal(t, "dune.png", got.filename)
		assert.Equal(t, "png-bytes", got.content)
		assert.Empty(t, got.validation)
		assert.Equal(t, `{"title":"Dune"}`, got.form)
	})

	t.Run("unsupported type is flagged but not aborted", func(t *testing.T) {
		req := multipartRequest(t, nil, &filePart{name: "doc.pdf", contentType: "application/pdf", data: []byte("%PDF")})

		w, got := serve(t, NewUploadHandler(1024), req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, got.reached)
		assert.False(t, got.upload)
		assert.Equal(t, "unsupported file type", got.validation)
	})

	t.Run("missing file part is a no-op", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"book": "{}"}, nil)

		w, got := serve(t, NewUploadHandler(1024), req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.False(t, got.upload)
		assert.Empty(t, got.validation)
	})

	t.Run("json body passes through untouched", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"title":"x"}`))
		req.Header.Set("Content-Type", "application/json")

		w, got := serve(t, NewUploadHandler(1024), req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, got.reached)
		assert.False(t, got.upload)
	})

	t.Run("oversized file is refused", func(t *testing.T) {
		req := multipartRequest(t, nil, &filePart{name: "big.jpg", contentType: "image/jpeg", data: bytes.Repeat([]byte("a"), 4096)})

		w, got := serve(t, NewUploadHandler(1024), req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, got.reached)
		assert.JSONEq(t, `{"error":"file too large"}`, w.Body.String())
	})

	t.Run("malformed multipart body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("garbage"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

		w, got := serve(t, NewUploadHandler(1024), req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, got.reached)
	})
}

func TestNewUploadHandler_DefaultLimit(t *testing.T) {
	assert.Equal(t, int64(10<<20), NewUploadHandler(0).maxSize)
}
