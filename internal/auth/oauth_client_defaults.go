package auth

// Cloud OAuth client baked in at build time with
// -ldflags "-X github.com/dl-alexandre/ecmdocs/internal/auth.BundledClientID=...".
// Without it, oauth.clientId must be configured before adding cloud accounts.
var (
	BundledClientID     string
	BundledClientSecret string
)

// CloudClient returns the configured OAuth client, falling back to the
// bundled one. ok is false when neither is set.
func CloudClient(clientID, clientSecret string) (id, secret string, ok bool) {
	if clientID != "" {
		return clientID, clientSecret, true
	}
	if BundledClientID != "" {
		return BundledClientID, BundledClientSecret, true
	}
	return "", "", false
}
