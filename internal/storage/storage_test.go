package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCVKey(t *testing.T) {
	now := time.UnixMilli(1717171717171)
	assert.Equal(t, "cvs/1717171717171-Jane_Doe_CV.pdf", CVKey(now, "Jane Doe CV.pdf"))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"resume.pdf":             "resume.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\cv (1).pdf`: "cv__1_.pdf",
		"Lebenslauf-Müller.pdf":  "Lebenslauf-M_ller.pdf",
		"":                       "cv.pdf",
		"...":                    "cv.pdf",
		".hidden.pdf":            "hidden.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}

func TestPublicURL(t *testing.T) {
	b, err := New(Config{Endpoint: "localhost:9000", Bucket: "cvs", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/cvs/cvs/1-cv.pdf", b.PublicURL("cvs/1-cv.pdf"))

	b, err = New(Config{Endpoint: "s3.example.com", Bucket: "cvs", UseSSL: true, PublicURL: "https://cdn.example.com/files/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/files/cvs/1-a%20b.pdf", b.PublicURL("cvs/1-a b.pdf"))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
