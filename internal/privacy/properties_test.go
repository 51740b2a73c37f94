package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Letters without a, e, i or u cannot spell any race/ethnicity term or a
// credential label, and without digits no numeric category can match.
var cleanRunes = []rune("bcdfghjklmnopqrstvwxyz")

func cleanWord() *rapid.Generator[string] {
	return rapid.StringOfN(rapid.RuneFrom(cleanRunes), 1, 12, -1)
}

func cleanSentence() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		words := rapid.SliceOfN(cleanWord(), 0, 20).Draw(t, "words")
		return strings.Join(words, " ")
	})
}

func TestPropertyCleanInputIsUnchanged(t *testing.T) {
	d := newTestDetector(t)

	rapid.Check(t, func(t *rapid.T) {
		text := cleanSentence().Draw(t, "text")
		if d.Detect(text) {
			t.Fatalf("clean text flagged: %q", text)
		}
		if got := d.Mask(text); got != text {
			t.Fatalf("clean text changed: %q -> %q", text, got)
		}
	})
}

func TestPropertyMaskRemovesDetectedEmail(t *testing.T) {
	d := newTestDetector(t)

	rapid.Check(t, func(t *rapid.T) {
		local := cleanWord().Draw(t, "local")
		domain := cleanWord().Draw(t, "domain")
		tld := rapid.SampledFrom([]string{"com", "org", "net", "io"}).Draw(t, "tld")
		email := local + "@" + domain + "." + tld

		text := cleanSentence().Draw(t, "before") + " " + email + " " + cleanSentence().Draw(t, "after")
		if !d.Detect(text) {
			t.Fatalf("email not detected in %q", text)
		}

		masked := d.Mask(text)
		if strings.Contains(masked, email) {
			t.Fatalf("email survived masking: %q", masked)
		}
		if d.Detect(masked) {
			t.Fatalf("masked text still flagged: %q", masked)
		}
	})
}

func TestPropertyShortCredentialsAreRejected(t *testing.T) {
	d := newTestDetector(t)

	rapid.Check(t, func(t *rapid.T) {
		label := rapid.SampledFrom([]string{"password", "user", "login", "username"}).Draw(t, "label")
		value := rapid.StringOfN(rapid.RuneFrom(cleanRunes), 1, DefaultMinLength-1, -1).Draw(t, "value")
		text := label + ": " + value

		require.False(t, d.Detect(text), text)
		require.Equal(t, text, d.Mask(text))
	})
}

func TestPropertyHomogeneousSecretsAreRejected(t *testing.T) {
	d := newTestDetector(t)

	rapid.Check(t, func(t *rapid.T) {
		r := rapid.RuneFrom(cleanRunes).Draw(t, "rune")
		n := rapid.IntRange(DefaultMinLength, 64).Draw(t, "n")
		text := "password: " + strings.Repeat(string(r), n)

		require.False(t, d.Detect(text), text)
	})
}
