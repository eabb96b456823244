package credential

import (
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// Credential is an OAuth2 access credential together with the scopes it
// was granted for.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scopes       []string
}

// ValidAt reports whether the access token is usable at now. A credential
// expiring within skew of now is already treated as expired. A zero expiry
// is unknown and therefore not valid.
func (c *Credential) ValidAt(now time.Time, skew time.Duration) bool {
	if c == nil || c.AccessToken == "" || c.Expiry.IsZero() {
		return false
	}
	return now.Add(skew).Before(c.Expiry)
}

// Refreshable reports whether the credential carries a refresh token.
func (c *Credential) Refreshable() bool {
	return c != nil && c.RefreshToken != ""
}

// Covers reports whether every requested scope was granted.
func (c *Credential) Covers(scopes []string) bool {
	if c == nil {
		return false
	}
	for _, s := range scopes {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// Token converts the credential to an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Scopes = slices.Clone(c.Scopes)
	return &out
}

// FromToken builds a credential from an oauth2 token granted for scopes.
func FromToken(tok *oauth2.Token, scopes []string) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       slices.Clone(scopes),
	}
}

// UnionScopes merges scope lists, keeping first-seen order and dropping
// duplicates and empty entries.
func UnionScopes(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if s != "" && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}
