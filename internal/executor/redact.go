package executor

import "strings"

// Mask replaces every registered secret in redacted output.
const Mask = "***"

// Redactor scrubs secrets from text before it leaves the executor.
type Redactor struct {
	secrets []string
}

// NewRedactor returns a Redactor for the given secrets; empty values are ignored.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r
}

// Redact returns s with every secret replaced by Mask. A nil Redactor is a no-op.
func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, Mask)
	}
	return s
}

// contains reports whether s carries any registered secret.
func (r *Redactor) contains(s string) bool {
	if r == nil {
		return false
	}
	for _, secret := range r.secrets {
		if strings.Contains(s, secret) {
			return true
		}
	}
	return false
}
