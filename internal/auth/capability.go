package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMissingSecret is returned when the case token secret is not configured.
var ErrMissingSecret = errors.New("recovery token secret is required")

// CaseTokens issues and checks the capability tokens embedded in customer
// reply links. A token is HMAC-SHA256(secret, caseID + ":" + email) in
// lowercase hex. Tokens never expire.
type CaseTokens struct {
	active   []byte
	previous [][]byte
}

// NewCaseTokens builds the authenticator. Previous secrets are accepted by
// Validate only, so links minted before a rotation keep working.
func NewCaseTokens(secret string, previous ...string) (*CaseTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	ct := &CaseTokens{active: []byte(secret)}
	for _, p := range previous {
		if strings.TrimSpace(p) == "" {
			continue
		}
		ct.previous = append(ct.previous, []byte(p))
	}
	return ct, nil
}

// Generate returns the token for a case and customer email.
func (ct *CaseTokens) Generate(caseID, customerEmail string) string {
	return sign(ct.active, caseID, customerEmail)
}

// Validate reports whether token was issued for caseID and customerEmail.
func (ct *CaseTokens) Validate(caseID, customerEmail, token string) bool {
	if ct == nil || customerEmail == "" || token == "" {
		return false
	}
	supplied := []byte(token)
	if hmac.Equal([]byte(sign(ct.active, caseID, customerEmail)), supplied) {
		return true
	}
	for _, key := range ct.previous {
		if hmac.Equal([]byte(sign(key, caseID, customerEmail)), supplied) {
			return true
		}
	}
	return false
}

func sign(key []byte, caseID, customerEmail string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(caseID + ":" + customerEmail))
	return hex.EncodeToString(mac.Sum(nil))
}
