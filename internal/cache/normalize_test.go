package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	mentions := []string{"wikibot"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "How Do I Craft A Sword?", "how do i craft a sword"},
		{"whitespace collapse", "  how   do\ti craft\n a sword ", "how do i craft a sword"},
		{"edge punctuation", "...how do i craft a sword!?!", "how do i craft a sword"},
		{"interior punctuation kept", "what's a jack o'lantern", "what's a jack o'lantern"},
		{"bot mention", "@WikiBot how do I make a torch?", "how do i make a torch"},
		{"bot mention with colon", "@wikibot: how do I make a torch", "how do i make a torch"},
		{"double mention", "@WikiBot @WikiBot help", "help"},
		{"bare at sign", "@ hello", "hello"},
		{"empty", "   ", ""},
		{"only punctuation", "?!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize(tt.in, mentions)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, normalize(got, mentions), "normalize must be idempotent")
		})
	}
}

func TestNormalize_PhrasingsCollide(t *testing.T) {
	mentions := []string{"wikibot"}
	variants := []string{
		"How do I craft a Sword?",
		"how do i craft a sword",
		"  HOW DO I CRAFT A SWORD!! ",
		"@WikiBot how do i craft a sword",
	}
	want := normalize(variants[0], mentions)
	for _, v := range variants {
		assert.Equal(t, want, normalize(v, mentions), "variant %q", v)
	}
}
