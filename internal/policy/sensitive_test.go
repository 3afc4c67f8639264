package policy

import (
	"reflect"
	"testing"
)

// The pattern lists are a maintained heuristic, so the tests enumerate
// them rather than trusting construction.

func TestSensitiveFilter_EveryBuiltinPatternMatchesItself(t *testing.T) {
	f := NewSensitiveFilter()

	var all []string
	all = append(all, credentialPatterns...)
	all = append(all, rolePatterns...)
	all = append(all, systemPatterns...)

	for _, pattern := range all {
		name := pattern
		if name[len(name)-1] == '_' {
			name += "value"
		}
		if !f.Sensitive(name) {
			t.Errorf("Sensitive(%q) = false, want true", name)
		}
	}
}

func TestSensitiveFilter_WordBoundedAffixes(t *testing.T) {
	f := NewSensitiveFilter()

	sensitive := []string{
		"password",
		"user_password",
		"password_hash",
		"api_token_expired",
		"legacy_secret_value",
		"Token",
		"ADMIN",
		"user_role",
		"role_name",
		"encrypted_ssn",
		"can_publish",
	}
	for _, name := range sensitive {
		if !f.Sensitive(name) {
			t.Errorf("Sensitive(%q) = false, want true", name)
		}
	}

	// Substrings without a word boundary must not match.
	benign := []string{
		"passwords_enabled_count", // "passwords" != "password" on a word boundary
		"rolex_model",
		"canary",
		"tokenizer",
		"secretary",
		"administrative_area",
		"promissory_note",
	}
	for _, name := range benign {
		if f.Sensitive(name) {
			t.Errorf("Sensitive(%q) = true, want false", name)
		}
	}
}

func TestSensitiveFilter_CredentialTierIsNarrowerThanWriteTier(t *testing.T) {
	f := NewSensitiveFilter()

	// Privilege and bookkeeping fields are write-protected but still
	// displayable.
	for _, name := range []string{"role", "admin", "created_at", "lock_version"} {
		if f.Credential(name) {
			t.Errorf("Credential(%q) = true, want false", name)
		}
		if !f.Sensitive(name) {
			t.Errorf("Sensitive(%q) = false, want true", name)
		}
	}

	for _, name := range []string{"password_digest", "api_key", "otp_secret"} {
		if !f.Credential(name) {
			t.Errorf("Credential(%q) = false, want true", name)
		}
	}
}

func TestSensitiveFilter_ExtraPatternsExtendTheList(t *testing.T) {
	f := NewSensitiveFilter("ssn", "internal_")

	for _, name := range []string{"ssn", "user_ssn", "internal_notes"} {
		if !f.Sensitive(name) {
			t.Errorf("Sensitive(%q) = false, want true with extras", name)
		}
	}
	if NewSensitiveFilter().Sensitive("ssn") {
		t.Error("ssn should not be sensitive without the extra pattern")
	}
}

func TestMaskValues_RecursesIntoNestedBlocks(t *testing.T) {
	f := NewSensitiveFilter()

	payload := map[string]any{
		"name":     "Alice",
		"password": "hunter2",
		"profile_attributes": map[string]any{
			"bio":       "hello",
			"api_key":   "k-123",
			"addresses": []map[string]any{{"city": "Oslo", "secret_code": "9"}},
		},
	}

	masked := f.MaskValues(payload)
	want := map[string]any{
		"name":     "Alice",
		"password": "[FILTERED]",
		"profile_attributes": map[string]any{
			"bio":       "hello",
			"api_key":   "[FILTERED]",
			"addresses": []map[string]any{{"city": "Oslo", "secret_code": "[FILTERED]"}},
		},
	}
	if !reflect.DeepEqual(masked, want) {
		t.Fatalf("MaskValues mismatch:\ngot  %#v\nwant %#v", masked, want)
	}

	if payload["password"] != "hunter2" {
		t.Fatal("MaskValues must not mutate the input payload")
	}
}
