package monarch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const (
	identityMinLen = 3
	// identityMaxLen keeps the name usable as a pipe or socket name on every platform.
	identityMaxLen = 250
	// fileStemMaxLen bounds derived socket and lock file names; Unix socket
	// paths are limited to ~104 bytes including the directory.
	fileStemMaxLen = 64
	fileStemPrefix = 48
)

// IdentityRule names the validation rule an identity violated.
type IdentityRule string

const (
	RuleEmpty           IdentityRule = "empty"
	RuleTooLong         IdentityRule = "too-long"
	RuleTooShort        IdentityRule = "too-short"
	RuleFirstLetter     IdentityRule = "first-letter"
	RuleCharset         IdentityRule = "charset"
	RuleTrailingDot     IdentityRule = "trailing-dot"
	RuleOnlyPunctuation IdentityRule = "only-punctuation"
)

// IdentityError reports why a string is not a valid Identity.
type IdentityError struct {
	Value  string
	Rule   IdentityRule
	Detail string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("invalid instance identity %q: %s", e.Value, e.Detail)
}

// Identity names an application uniquely on the host. It is used as the
// single-instance key and as the activation channel name.
//
// The zero value is not valid; obtain one through ParseIdentity.
type Identity struct {
	value string
}

// ParseIdentity validates s. Rules are checked in a fixed order and the
// first violation is reported.
func ParseIdentity(s string) (Identity, error) {
	fail := func(rule IdentityRule, format string, a ...any) (Identity, error) {
		return Identity{}, &IdentityError{Value: s, Rule: rule, Detail: fmt.Sprintf(format, a...)}
	}

	if s == "" {
		return fail(RuleEmpty, "must not be empty")
	}
	n := len([]rune(s))
	if n > identityMaxLen {
		return fail(RuleTooLong, "exceeds maximum length of %d characters (actual: %d)", identityMaxLen, n)
	}
	if n < identityMinLen {
		return fail(RuleTooShort, "minimum %d characters required (actual: %d)", identityMinLen, n)
	}

	first := []rune(s)[0]
	if !unicode.IsLetter(first) {
		return fail(RuleFirstLetter, "must start with a letter, got %q", first)
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			return fail(RuleCharset, "contains invalid character %q; only letters, digits, '.', '-', '_' are allowed", r)
		}
	}
	if strings.HasSuffix(s, ".") {
		return fail(RuleTrailingDot, "must not end with a dot")
	}
	if strings.Trim(s, ".-") == "" {
		return fail(RuleOnlyPunctuation, "must not consist only of dots and dashes")
	}

	return Identity{value: s}, nil
}

// MustParseIdentity is like ParseIdentity but panics on error. Intended for
// package-level identities and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string { return id.value }

// IsZero reports whether id was not produced by ParseIdentity.
func (id Identity) IsZero() bool { return id.value == "" }

// FileStem returns a filesystem-safe name derived from the identity, short
// enough to fit into a Unix socket path. Identities longer than the limit
// keep a readable prefix followed by a hash of the full value.
func (id Identity) FileStem() string {
	if len(id.value) <= fileStemMaxLen && isASCII(id.value) {
		return id.value
	}
	sum := sha256.Sum256([]byte(id.value))
	prefix := asciiPrefix(id.value, fileStemPrefix)
	if prefix == "" {
		prefix = "id"
	}
	return prefix + "-" + hex.EncodeToString(sum[:8])
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= unicode.MaxASCII {
			return false
		}
	}
	return true
}

func asciiPrefix(s string, limit int) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= limit {
			break
		}
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), ".")
}
