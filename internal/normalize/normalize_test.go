package normalize

import (
	"strings"
	"testing"

	"github.com/gatewall/relay/internal/embed"
)

func intp(v int) *int { return &v }

func TestNormalize_CaseAndPunctuationInsensitive(t *testing.T) {
	a := embed.Embed{Title: "Hello!!", Description: "World."}
	b := embed.Embed{Title: "hello", Description: "world"}

	if got, want := Normalize(a), Normalize(b); got != want {
		t.Errorf("Normalize mismatch: %q vs %q", got, want)
	}
}

func TestNormalize_WhitespaceCollapsed(t *testing.T) {
	e := embed.Embed{Title: "  a   b\t\nc  ", Description: "d"}
	got := Normalize(e)
	if strings.Contains(got, "  ") {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
	if strings.HasPrefix(got, " ") || strings.HasSuffix(got, " ") {
		t.Errorf("expected trimmed edges, got %q", got)
	}
}

func TestNormalize_StripsSymbolsAndEmoji(t *testing.T) {
	tests := []struct {
		name string
		in   embed.Embed
		want string
	}{
		{
			name: "punctuation",
			in:   embed.Embed{Title: "h-e.l,l!o?"},
			want: "hello",
		},
		{
			name: "emoji",
			in:   embed.Embed{Title: "🪙 Name: abc 🎉"},
			want: "name abc",
		},
		{
			name: "cyrillic preserved",
			in:   embed.Embed{Title: "Привет, мир! Ёж."},
			want: "привет мир ёж",
		},
		{
			name: "digits preserved",
			in:   embed.Embed{Title: "Server #42"},
			want: "server 42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_FixedPartOrder(t *testing.T) {
	e := embed.Embed{
		Title:       "Title",
		Description: "Desc",
		Color:       intp(6591981),
		Fields: []embed.Field{
			{Name: "N1", Value: "V1"},
			{Name: "N2", Value: "V2"},
		},
	}
	// The separator is a stripped symbol, so parts concatenate directly
	// unless the source text itself carried spaces.
	want := "titledesc6591981n1v1n2v2"
	if got := Normalize(e); got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalize_IncidentalStructureIrrelevant(t *testing.T) {
	a := embed.Embed{
		Title:       "Srv",
		Description: "Up",
		Fields:      []embed.Field{{Name: "A", Value: "1"}},
	}
	inl := true
	b := embed.Embed{
		Title:       "SRV",
		Description: "up!!",
		Fields:      []embed.Field{{Name: "a", Value: "1", Inline: &inl}},
	}
	if Normalize(a) != Normalize(b) {
		t.Errorf("inline flag and case changed the normal form: %q vs %q", Normalize(a), Normalize(b))
	}
}

func TestNormalize_EmptyEmbed(t *testing.T) {
	if got := Normalize(embed.Embed{}); got != "" {
		t.Errorf("Normalize(empty) = %q, want empty string", got)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("hello world")
	b := Fingerprint("hello world")
	if a != b {
		t.Errorf("equal inputs produced different digests: %s vs %s", a, b)
	}
	if c := Fingerprint("hello worlds"); c == a {
		t.Errorf("different inputs produced the same digest: %s", c)
	}
}

func TestFingerprint_Format(t *testing.T) {
	fp := Fingerprint("abc")
	if len(fp) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(fp))
	}
	if fp != strings.ToLower(fp) {
		t.Errorf("digest is not lowercase: %s", fp)
	}
	// Known SHA-256 of "abc".
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if fp != want {
		t.Errorf("Fingerprint(\"abc\") = %s, want %s", fp, want)
	}
}

func TestNormalizeThenFingerprint_ObfuscationCollapses(t *testing.T) {
	clean := embed.Embed{Title: "join my server", Description: "now"}
	noisy := embed.Embed{Title: "JOIN!!! my... server", Description: "n-o-w"}

	if Fingerprint(Normalize(clean)) != Fingerprint(Normalize(noisy)) {
		t.Error("trivially obfuscated content did not collapse to the same fingerprint")
	}
}
