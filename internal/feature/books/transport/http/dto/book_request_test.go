package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlexInt
		wantErr bool
	}{
		{name: "number", input: `1965`, want: 1965},
		{name: "numeric string", input: `"1965"`, want: 1965},
		{name: "padded string", input: `" 2001 "`, want: 2001},
		{name: "integral float", input: `1965.0`, want: 1965},
		{name: "fraction", input: `1965.5`, wantErr: true},
		{name: "word", input: `"soon"`, wantErr: true},
		{name: "empty string", input: `""`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexInt
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeUpdate(t *testing.T) {
	t.Run("empty body is an empty update", func(t *testing.T) {
		req, err := DecodeUpdate([]byte("  "))
		require.NoError(t, err)
		assert.True(t, req.Patch().IsEmpty())
	})

	t.Run("partial fields", func(t *testing.T) {
		req, err := DecodeUpdate([]byte(`{"title":"Dune Messiah","year":"1969"}`))
		require.NoError(t, err)

		p := req.Patch()
		require.NotNil(t, p.Title)
		assert.Equal(t, "Dune Messiah", *p.Title)
		require.NotNil(t, p.Year)
		assert.Equal(t, 1969, *p.Year)
		assert.Nil(t, p.Author)
		assert.Nil(t, p.Genre)
	})

	t.Run("client image fields are not carried", func(t *testing.T) {
		req, err := DecodeUpdate([]byte(`{"imageUrl":"http://evil/x.jpg"}`))
		require.NoError(t, err)
		assert.True(t, req.Patch().IsEmpty())
	})

	for _, field := range readOnlyFields {
		t.Run("rejects "+field, func(t *testing.T) {
			_, err := DecodeUpdate([]byte(`{"` + field + `":1}`))
			assert.ErrorIs(t, err, ErrReadOnlyField)
			assert.Contains(t, err.Error(), field)
		})
	}

	t.Run("not an object", func(t *testing.T) {
		_, err := DecodeUpdate([]byte(`[1,2]`))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrReadOnlyField)
	})
}
