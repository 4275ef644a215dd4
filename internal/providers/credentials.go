package providers

import "growth_quest/internal/utils"

// Credentials holds the secret and optional endpoint override for one provider.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// CredentialSet maps each provider to its credentials. It is built once at
// startup and treated as read-only afterwards.
type CredentialSet map[Identity]Credentials

// Has reports whether the provider has a usable API key.
func (s CredentialSet) Has(id Identity) bool {
	return s[id].APIKey != ""
}

// Get returns the provider's credentials with the default base URL applied.
func (s CredentialSet) Get(id Identity) Credentials {
	creds := s[id]
	if creds.BaseURL == "" {
		creds.BaseURL = id.DefaultBaseURL()
	}
	return creds
}

// Masked returns the provider's API key safe for display.
func (s CredentialSet) Masked(id Identity) string {
	return utils.MaskSecret(s[id].APIKey)
}

// Configured lists providers with credentials, in display order.
func (s CredentialSet) Configured() []Identity {
	var out []Identity
	for _, id := range Identities() {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
