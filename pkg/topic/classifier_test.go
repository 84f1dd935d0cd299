package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func firstStarter(int) int { return 0 }

func TestClassifyMedicalAIHeadline(t *testing.T) {
	c := NewHeuristic(nil).WithPicker(func(int) int { return 1 })

	got := c.Classify("AI breakthrough in medical diagnosis")
	assert.Equal(t, "Technology", got.Category)
	assert.Equal(t, []string{"breakthrough", "medical", "diagnosis"}, got.Keywords)
	assert.Equal(t, "Do you support AI breakthrough in medical diagnosis?", got.Question)
	assert.True(t, got.IsSafe)
}

func TestKeywordsDropStopWordsAndShortWords(t *testing.T) {
	kw := Keywords("The AI breakthrough in the medical diagnosis of the heart")
	assert.NotEmpty(t, kw)
	assert.NotContains(t, kw, "the")
	assert.NotContains(t, kw, "ai")

	kw = Keywords("Rust, rust! RUST compilers: faster builds, smaller binaries, better tooling, cleaner errors")
	assert.Equal(t, []string{"rust", "compilers", "faster", "builds", "smaller"}, kw)

	assert.Equal(t, []string{"four", "work", "trials", "expand"}, Keywords("Four-day work week trials expand"))
}

func TestQuestionRules(t *testing.T) {
	h := NewHeuristic(nil).WithPicker(firstStarter)

	tests := []struct {
		in   string
		want string
	}{
		{"Is remote work here to stay?", "Is remote work here to stay?"},
		{"should schools ban homework", "Should schools ban homework?"},
		{"Ban on plastic straws.", "Ban on plastic straws?"},
		{"Cities must cut emissions.", "Do you agree: Cities must cut emissions?"},
		{"Electric vehicle sales hit record high", "Should we be concerned about electric vehicle sales hit record high?"},
		{"NASA plans crewed Mars mission", "Should we be concerned about NASA plans crewed Mars mission?"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.Question(tt.in), tt.in)
	}
}

func TestQuestionUsesPickedStarter(t *testing.T) {
	for i, starter := range questionStarters {
		h := NewHeuristic(nil).WithPicker(func(int) int { return i })
		q := h.Question("Electric vehicle sales hit record high")
		assert.Contains(t, q, "electric vehicle sales hit record high", starter)
		assert.True(t, q[len(q)-1] == '?')
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AI breakthrough in medical diagnosis", "Technology"},
		{"Senate debates new budget", "Politics"},
		{"New vaccine approved for children", "Health"},
		{"Telescope spots distant galaxy", "Science"},
		{"Inflation cools as prices steady", "Business"},
		{"Underdog wins the championship final", "Sports"},
		{"Netflix cancels popular series", "Entertainment"},
		{"Singer announces farewell concert", "Entertainment"},
		{"Plans for gas-powered leaf blowers", "Environment"},
		{"Happy hour returns downtown", DefaultCategory},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.in), tt.in)
	}
}

func TestCategorizePhraseMatchesSubstring(t *testing.T) {
	assert.Equal(t, "Technology", Categorize("Teens quit social media for a month"))
	assert.Equal(t, "Politics", Categorize("Supreme Court hears landmark case"))
}

func TestSafety(t *testing.T) {
	h := NewHeuristic([]string{"Casino"})

	assert.False(t, h.Classify("Suspect charged with murder downtown").IsSafe)
	assert.False(t, h.Classify("NSFW clip goes viral").IsSafe)
	assert.False(t, h.Classify("New casino opens on the strip").IsSafe)
	// Substring matching rejects innocent words that contain a banned root.
	assert.False(t, h.Classify("Skills gap widens in manufacturing").IsSafe)
	assert.True(t, h.Classify("Electric vehicle sales hit record high").IsSafe)
}
