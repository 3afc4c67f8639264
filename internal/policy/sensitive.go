package policy

import "strings"

// credentialPatterns cover secrets and authentication bookkeeping.
// Entries ending in "_" are prefix patterns; everything else matches the
// whole name or a word-bounded affix (name_x, x_name, x_name_y).
var credentialPatterns = []string{
	"password",
	"password_digest",
	"password_confirmation",
	"encrypted_password",
	"reset_password_token",
	"reset_password_sent_at",
	"remember_token",
	"remember_created_at",
	"authentication_token",
	"access_token",
	"refresh_token",
	"api_key",
	"api_secret",
	"token",
	"secret",
	"secret_key",
	"secret_token",
	"private_key",
	"otp_secret",
	"confirmation_token",
	"confirmed_at",
	"confirmation_sent_at",
	"unconfirmed_email",
	"unlock_token",
	"locked_at",
	"failed_attempts",
	"encrypted_",
	"crypted_",
	"cipher_",
}

// rolePatterns cover privilege-bearing attributes that writes must never
// reach, even when a dashboard declares them.
var rolePatterns = []string{
	"admin",
	"superadmin",
	"super_admin",
	"role",
	"roles",
	"permission",
	"permissions",
	"can_",
	"is_admin",
	"is_superadmin",
}

// systemPatterns cover engine-managed bookkeeping columns.
var systemPatterns = []string{
	"created_at",
	"updated_at",
	"deleted_at",
	"discarded_at",
	"lock_version",
}

// SensitiveFilter decides which attribute names are too dangerous to
// expose or write. Extra patterns come from host configuration and can
// only extend the built-in list.
type SensitiveFilter struct {
	credential []string
	write      []string
}

// NewSensitiveFilter builds a filter with the default pattern lists plus
// any host-configured extras.
func NewSensitiveFilter(extra ...string) *SensitiveFilter {
	write := make([]string, 0, len(credentialPatterns)+len(rolePatterns)+len(systemPatterns)+len(extra))
	write = append(write, credentialPatterns...)
	write = append(write, rolePatterns...)
	write = append(write, systemPatterns...)
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			write = append(write, p)
		}
	}
	return &SensitiveFilter{credential: credentialPatterns, write: write}
}

// Credential reports whether the attribute carries secret material and
// must be hidden from display as well as writes.
func (f *SensitiveFilter) Credential(name string) bool {
	return matchAny(f.credential, name)
}

// Sensitive reports whether the attribute must be excluded from write
// allow-lists: credentials, privilege flags, system bookkeeping, and any
// host-configured extras.
func (f *SensitiveFilter) Sensitive(name string) bool {
	return matchAny(f.write, name)
}

// FilterNames drops sensitive names from a list, preserving order.
func (f *SensitiveFilter) FilterNames(names []string) []string {
	var out []string
	for _, n := range names {
		if !f.Sensitive(n) {
			out = append(out, n)
		}
	}
	return out
}

// MaskValues replaces values of sensitive keys with a placeholder,
// walking nested maps and slices. Used for audit change payloads.
func (f *SensitiveFilter) MaskValues(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	masked := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.(type) {
		case map[string]any:
			masked[key] = f.MaskValues(v)
		case []map[string]any:
			entries := make([]map[string]any, len(v))
			for i, entry := range v {
				entries[i] = f.MaskValues(entry)
			}
			masked[key] = entries
		default:
			if f.Sensitive(key) {
				masked[key] = "[FILTERED]"
			} else {
				masked[key] = value
			}
		}
	}
	return masked
}

func matchAny(patterns []string, name string) bool {
	attr := strings.ToLower(name)
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "_") {
			if strings.HasPrefix(attr, pattern) {
				return true
			}
			continue
		}
		if attr == pattern ||
			strings.HasPrefix(attr, pattern+"_") ||
			strings.HasSuffix(attr, "_"+pattern) ||
			strings.Contains(attr, "_"+pattern+"_") {
			return true
		}
	}
	return false
}
