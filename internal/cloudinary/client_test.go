package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceType(t *testing.T) {
	assert.Equal(t, "image", ResourceType("photo.JPG"))
	assert.Equal(t, "raw", ResourceType("syllabus.pdf"))
	assert.Equal(t, "raw", ResourceType("README"))
}

func TestUpload(t *testing.T) {
	wantSig := fmt.Sprintf("%x", sha1.Sum([]byte("folder=docs&timestamp=1700000000secret")))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/raw/upload", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, wantSig, r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "notes.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4", string(body))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"public_id":"docs/notes","secure_url":"https://res.example/notes.pdf","resource_type":"raw","bytes":8}`)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "docs")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.Upload(context.Background(), "notes.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/notes.pdf", res.SecureURL)
	assert.Equal(t, "raw", res.ResourceType)
}

func TestUpload_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "bad", "")
	c.BaseURL = srv.URL
	_, err := c.Upload(context.Background(), "a.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
