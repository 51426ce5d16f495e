package policy

import "crypto/subtle"

// KeyGate is the pass/fail authentication check applied at every boundary
// entry point. An empty configured key disables the check entirely, which is
// the expected mode for localhost-only deployments.
type KeyGate struct {
	key string
}

func NewKeyGate(key string) *KeyGate {
	return &KeyGate{key: key}
}

// Enabled reports whether callers must present a key at all.
func (g *KeyGate) Enabled() bool {
	return g.key != ""
}

// Allow checks a caller-supplied token against the configured key.
func (g *KeyGate) Allow(token string) bool {
	if g.key == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.key)) == 1
}
