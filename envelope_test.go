package monarch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	tests := [][]string{
		nil,
		{},
		{"--open", "file.txt"},
		{"ünïcode", "", "with space", `quo"te`},
	}
	for _, args := range tests {
		data, err := NewEnvelope(ts, args).Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatalf("DecodeEnvelope(%s): %v", data, err)
		}
		want := args
		if want == nil {
			want = []string{}
		}
		if diff := cmp.Diff(want, got.Args()); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
		if !got.Timestamp().Equal(ts) {
			t.Errorf("timestamp = %v, want %v", got.Timestamp(), ts)
		}
	}
}

func TestEnvelope_EncodesEmptyArgsAsArray(t *testing.T) {
	data, err := NewEnvelope(time.Unix(0, 0).UTC(), nil).Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamp":"1970-01-01T00:00:00Z","args":[]}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestEnvelope_ArgsAreCopied(t *testing.T) {
	in := []string{"a", "b"}
	env := NewEnvelope(time.Now(), in)
	in[0] = "mutated"
	out := env.Args()
	out[1] = "mutated"
	if diff := cmp.Diff([]string{"a", "b"}, env.Args()); diff != "" {
		t.Errorf("envelope changed (-want +got):\n%s", diff)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []string{
		"",
		"null",
		"   ",
		`"just a string"`,
		`[1,2]`,
		`{"timestamp":"yesterday","args":[]}`,
		`{"timestamp":"2026-01-01T00:00:00Z","args":[1]}`,
		`{"timestamp":`,
	}
	for _, in := range tests {
		if _, err := DecodeEnvelope([]byte(in)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("DecodeEnvelope(%q) error = %v, want ErrMalformedEnvelope", in, err)
		}
	}
}

func TestDecodeEnvelope_MissingArgs(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"timestamp":"2026-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if got := env.Args(); got == nil || len(got) != 0 {
		t.Errorf("Args() = %#v, want empty non-nil", got)
	}
}
