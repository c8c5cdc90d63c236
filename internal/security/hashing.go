package security

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a structurally valid bcrypt record used to equalize the cost of
// a failed lookup with a real verification. The plaintext behind it is never
// accepted anywhere.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Hasher hashes and verifies secrets using bcrypt. Each Hash call salts
// independently, so two hashes of the same secret never compare equal as
// strings while both still verify.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to the
// range bcrypt accepts. Cost 12 is a reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a salted bcrypt record of secret. The salt and cost are
// embedded in the record. Fails only when the entropy source is exhausted;
// that failure is not retryable.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify recomputes the hash of secret with the salt and cost embedded in
// record and compares in constant time. Malformed records verify as false,
// never as an error.
func (h *Hasher) Verify(secret []byte, record string) bool {
	return bcrypt.CompareHashAndPassword([]byte(record), secret) == nil
}

// DummyVerify burns one bcrypt comparison against a fixed record so callers
// can keep login timing identical whether or not the identifier exists.
func (h *Hasher) DummyVerify(secret []byte) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), secret)
}
