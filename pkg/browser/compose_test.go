package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCardIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://gemini.google.com/app/abc123def", "abc123def"},
		{"https://gemini.google.com/app/abc123def?hl=pl", "abc123def"},
		{"https://gemini.google.com/app/abc123def#section", "abc123def"},
		{"https://gemini.google.com/app/abc/extra", "abc"},
		{"https://gemini.google.com/app", ""},
		{"https://gemini.google.com/app/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cardIDFromURL(tc.url), tc.url)
	}
}
