package testutil

// ConstantKey returns the same correlation key every time.
//
// Requests submitted with it all share one key, so each new start
// supersedes the one before: the case switch semantics are about.
//
// Thread-safety: ConstantKey is stateless and safe for concurrent use.
type ConstantKey struct {
	key string
}

// NewConstantKey creates a constant key generator. An empty key becomes
// "test-key".
func NewConstantKey(key string) *ConstantKey {
	if key == "" {
		key = "test-key"
	}
	return &ConstantKey{key: key}
}

// Generate returns the fixed key.
//
// Implements ids.Generator.
func (g *ConstantKey) Generate() string {
	return g.key
}
