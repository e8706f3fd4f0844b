package transport

import "testing"

func TestTargetKeyRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		key    string
		target ChatTarget
	}{
		{"12345", ChatTarget{ChatID: 12345}},
		{"-1001234567890", ChatTarget{ChatID: -1001234567890}},
		{"-1001234567890:42", ChatTarget{ChatID: -1001234567890, ThreadID: 42}},
	}
	for _, tc := range cases {
		got, err := ParseTarget(tc.key)
		if err != nil || got != tc.target {
			t.Fatalf("ParseTarget(%q) = %+v, %v", tc.key, got, err)
		}
		if got.Key() != tc.key {
			t.Fatalf("Key() = %q, want %q", got.Key(), tc.key)
		}
	}
	for _, bad := range []string{"", "abc", "0", "12:x", "12:-1"} {
		if _, err := ParseTarget(bad); err == nil {
			t.Fatalf("ParseTarget(%q): expected error", bad)
		}
	}
}
