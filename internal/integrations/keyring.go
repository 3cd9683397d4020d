package integrations

// Keyring holds the process-wide vendor credentials.
type Keyring struct {
	Admin                 string
	Global                string
	DisableGlobalFallback bool
}

// Bearer picks the credential for a call: override, then session token, then
// the admin token (administrative calls only), then the global token unless
// fallback is disabled.
func (k Keyring) Bearer(auth CallAuth, admin bool) (string, error) {
	switch {
	case auth.Override != "":
		return auth.Override, nil
	case auth.Session != "":
		return auth.Session, nil
	case admin && k.Admin != "":
		return k.Admin, nil
	case !k.DisableGlobalFallback && k.Global != "":
		return k.Global, nil
	}
	return "", ErrCredentialsMissing
}

// Mask shortens a secret for logs.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "***" + s[len(s)-2:]
}
