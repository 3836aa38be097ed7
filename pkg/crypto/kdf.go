package crypto

import (
	"golang.org/x/crypto/scrypt"
)

// scryptN/r/p follow the parameters golang.org/x/crypto/scrypt's own
// docs recommend for interactive logins as of 2017; this derivation
// runs once at startup, not per-request, so the cost is negligible.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// DeriveKey stretches an operator-supplied secret (ENCRYPTION_KEY,
// which need not itself be high-entropy key material) into a 32-byte
// AES-256 key via scrypt, salted with salt. The same (secret, salt)
// pair always derives the same key.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	return scrypt.Key(secret, salt, scryptN, scryptR, scryptP, 32)
}
