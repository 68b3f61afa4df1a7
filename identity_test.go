package monarch

import (
	"errors"
	"strings"
	"testing"
)

func TestParseIdentity_Valid(t *testing.T) {
	tests := []string{
		"abc",
		"Contoso.Notes",
		"my-app_2",
		"a.b-c_d",
		"Überapp",
		"x" + strings.Repeat("y", 249),
	}
	for _, in := range tests {
		id, err := ParseIdentity(in)
		if err != nil {
			t.Errorf("ParseIdentity(%q) error = %v", in, err)
			continue
		}
		if id.String() != in {
			t.Errorf("ParseIdentity(%q).String() = %q", in, id.String())
		}
	}
}

func TestParseIdentity_Invalid(t *testing.T) {
	tests := []struct {
		in   string
		rule IdentityRule
	}{
		{"", RuleEmpty},
		{"a" + strings.Repeat("b", 250), RuleTooLong},
		{"ab", RuleTooShort},
		{"1app", RuleFirstLetter},
		{".app", RuleFirstLetter},
		{"my app", RuleCharset},
		{"app/x", RuleCharset},
		{"app.", RuleTrailingDot},
		{"app.name.", RuleTrailingDot},
	}
	for _, tt := range tests {
		_, err := ParseIdentity(tt.in)
		var idErr *IdentityError
		if !errors.As(err, &idErr) {
			t.Errorf("ParseIdentity(%q) error = %v, want *IdentityError", tt.in, err)
			continue
		}
		if idErr.Rule != tt.rule {
			t.Errorf("ParseIdentity(%q) rule = %s, want %s", tt.in, idErr.Rule, tt.rule)
		}
		if !strings.Contains(err.Error(), tt.in) {
			t.Errorf("error %q does not name the value", err)
		}
	}
}

func TestParseIdentity_Deterministic(t *testing.T) {
	_, err1 := ParseIdentity("9lives")
	_, err2 := ParseIdentity("9lives")
	if err1 == nil || err2 == nil || err1.Error() != err2.Error() {
		t.Fatalf("errors differ: %v vs %v", err1, err2)
	}
}

func TestIdentity_FileStem(t *testing.T) {
	short := MustParseIdentity("Contoso.Notes")
	if got := short.FileStem(); got != "Contoso.Notes" {
		t.Errorf("FileStem() = %q, want identity unchanged", got)
	}

	long := MustParseIdentity("a" + strings.Repeat("b", 200))
	stem := long.FileStem()
	if len(stem) > fileStemMaxLen+1 {
		t.Errorf("len(FileStem()) = %d, want <= %d", len(stem), fileStemMaxLen+1)
	}
	if !strings.HasPrefix(stem, "abbb") {
		t.Errorf("FileStem() = %q, want readable prefix", stem)
	}

	other := MustParseIdentity("a" + strings.Repeat("b", 199) + "c")
	if other.FileStem() == stem {
		t.Errorf("distinct identities share stem %q", stem)
	}
}

func TestMustParseIdentity_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustParseIdentity did not panic")
		}
	}()
	MustParseIdentity("no")
}
