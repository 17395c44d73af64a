package embed

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinFields is the minimum number of fields a valid embed carries.
	MinFields = 5

	// MaxValueBytes caps a single field value. Oversized values are
	// rejected before any further inspection.
	MaxValueBytes = 2048
)

// Rules holds the membership and content checks applied to a payload.
// All three lists come from configuration; the zero value rejects every
// color and field name, so callers should start from DefaultRules.
type Rules struct {
	AllowedColors     []int
	AllowedFieldNames []string
	Blacklist         []string // lowercase substrings
}

// DefaultRules returns the production rule set.
func DefaultRules() Rules {
	return Rules{
		AllowedColors: []int{6591981, 16711680},
		AllowedFieldNames: []string{
			"🪙 Name:",
			"📈 Generation:",
			"👥 Players:",
			"🔗 Server Link:",
			"📱 Job-ID (Mobile):",
			"💻 Job-ID (PC):",
			"📲 Join:",
		},
		Blacklist: []string{"raided", "discord", "everyone", "lol", "raid", "fucked", "fuck"},
	}
}

// Violation codes, stable for logging and response mapping.
const (
	CodeNoEmbeds      = "no_embeds"
	CodeMissingTitle  = "missing_title"
	CodeMissingDesc   = "missing_description"
	CodeTooFewFields  = "too_few_fields"
	CodeBadColor      = "bad_color"
	CodeBadFieldName  = "bad_field_name"
	CodeValueTooLarge = "value_too_large"
	CodeBadEncoding   = "bad_encoding"
	CodeBlacklisted   = "blacklisted"
)

// Violation describes the first validation rule a payload failed.
type Violation struct {
	Code   string
	Detail string
}

func (v *Violation) String() string {
	return v.Code + ": " + v.Detail
}

// Validate checks p against rules and returns nil if it passes, or a
// Violation for the first failing check. Checks run in a fixed order:
// structure, color membership, then per-field name/encoding/blacklist.
func Validate(p Payload, rules Rules) *Violation {
	e, ok := p.First()
	if !ok {
		return &Violation{Code: CodeNoEmbeds, Detail: "payload carries no embeds"}
	}
	if e.Title == "" {
		return &Violation{Code: CodeMissingTitle, Detail: "embed title is required"}
	}
	if e.Description == "" {
		return &Violation{Code: CodeMissingDesc, Detail: "embed description is required"}
	}
	if len(e.Fields) < MinFields {
		return &Violation{
			Code:   CodeTooFewFields,
			Detail: fmt.Sprintf("embed has %d fields, need at least %d", len(e.Fields), MinFields),
		}
	}
	if e.Color != nil && !containsInt(rules.AllowedColors, *e.Color) {
		return &Violation{Code: CodeBadColor, Detail: fmt.Sprintf("color %d is not allowed", *e.Color)}
	}

	for _, f := range e.Fields {
		if !containsString(rules.AllowedFieldNames, f.Name) {
			return &Violation{Code: CodeBadFieldName, Detail: fmt.Sprintf("field name %q is not allowed", f.Name)}
		}
		if len(f.Value) > MaxValueBytes {
			return &Violation{Code: CodeValueTooLarge, Detail: fmt.Sprintf("field %q value exceeds %d bytes", f.Name, MaxValueBytes)}
		}
		if !utf8.ValidString(f.Value) {
			return &Violation{Code: CodeBadEncoding, Detail: fmt.Sprintf("field %q value is not valid UTF-8", f.Name)}
		}
		if term := matchBlacklist(rules.Blacklist, f.Name, f.Value); term != "" {
			return &Violation{Code: CodeBlacklisted, Detail: fmt.Sprintf("blacklisted term %q", term)}
		}
	}
	return nil
}

// matchBlacklist returns the first blacklist term found in any of the given
// texts, compared case-insensitively, or "" if none match.
func matchBlacklist(blacklist []string, texts ...string) string {
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, term := range blacklist {
			if strings.Contains(lower, term) {
				return term
			}
		}
	}
	return ""
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
