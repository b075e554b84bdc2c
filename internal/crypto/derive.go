package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// DeriveKey stretches a passphrase into the 32-byte key a Crypter needs.
// The salt only has to be stable per installation, not secret.
func DeriveKey(passphrase, salt string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), 4096, 32, sha256.New)
}
