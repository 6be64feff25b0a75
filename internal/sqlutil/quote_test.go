package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	cases := map[string]string{
		"user":       "`user`",
		"_PostToTag": "`_PostToTag`",
		"order":      "`order`",
		"first name": "`first name`",
		"a`b":        "`a``b`",
		"":           "``",
	}
	for in, want := range cases {
		assert.Equal(t, want, QuoteIdentifier(in), in)
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, "`post`.`authorId`", QuoteQualified("post", "authorId"))
	assert.Equal(t, "`id`", QuoteQualified("", "id"))
	assert.Equal(t, "`x``y`.`z`", QuoteQualified("x`y", "z"))
}
