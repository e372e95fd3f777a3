package utils

import (
	"strings"
	"testing"
)

func TestValidateStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		valid    bool
		missing  []string // substrings expected among the errors
	}{
		{"all rules met", "Str0ng!Pass", true, nil},
		{"too short", "S7r!n", false, []string{"8 characters"}},
		{"no uppercase", "str0ng!pass", false, []string{"uppercase"}},
		{"no lowercase", "STR0NG!PASS", false, []string{"lowercase"}},
		{"no digit", "Strong!Pass", false, []string{"digit"}},
		{"no special", "Str0ngPass", false, []string{"special"}},
		{"empty reports every rule", "", false, []string{
			"8 characters", "uppercase", "lowercase", "digit", "special",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateStrength(tc.password)
			if res.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", res.Valid, tc.valid, res.Errors)
			}
			for _, want := range tc.missing {
				found := false
				for _, e := range res.Errors {
					if strings.Contains(e, want) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("errors %v missing rule %q", res.Errors, want)
				}
			}
			if tc.valid && len(res.Errors) != 0 {
				t.Errorf("valid result carries errors: %v", res.Errors)
			}
		})
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass", 4) // min cost keeps the test fast
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "Str0ng!Pass") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	if VerifyPassword("not-a-bcrypt-hash", "anything") {
		t.Error("malformed hash accepted")
	}
	if VerifyPassword("", "anything") {
		t.Error("empty hash accepted")
	}
}

func TestHashPasswordClampsCost(t *testing.T) {
	// An out-of-range cost must not error, it falls back to the default.
	hash, err := HashPassword("Str0ng!Pass", 99)
	if err != nil {
		t.Fatalf("HashPassword with bad cost: %v", err)
	}
	if !VerifyPassword(hash, "Str0ng!Pass") {
		t.Error("round trip failed after cost clamp")
	}
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(64)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if len(a) != 128 {
		t.Fatalf("len = %d, want 128", len(a))
	}
	b, _ := RandomHex(64)
	if a == b {
		t.Error("two random tokens are equal")
	}
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(10)
	if err != nil {
		t.Fatalf("RandomString: %v", err)
	}
	if len(s) != 10 {
		t.Fatalf("len = %d, want 10", len(s))
	}
	for _, r := range s {
		if strings.ContainsRune("0O1lI", r) {
			t.Errorf("ambiguous character %q in %q", r, s)
		}
	}
}
