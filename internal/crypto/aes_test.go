package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	c := New(DeriveKey("passphrase", "salt"))

	plaintext := []byte(`{"host":"smtp.example.com","authPassword":"hunter2"}`)
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Contains(ciphertext, []byte("hunter2")) {
		t.Error("ciphertext leaks plaintext")
	}

	got, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("roundtrip mismatch: %q", got)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	a := New(DeriveKey("passphrase-a", "salt"))
	b := New(DeriveKey("passphrase-b", "salt"))

	ciphertext, err := a.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption with the wrong key to fail")
	}
}

func TestDecrypt_TruncatedCiphertext(t *testing.T) {
	c := New(DeriveKey("passphrase", "salt"))
	if _, err := c.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected an error for truncated ciphertext")
	}
}

func TestDeriveKey_StableAndDistinct(t *testing.T) {
	if !bytes.Equal(DeriveKey("p", "s"), DeriveKey("p", "s")) {
		t.Error("derivation must be deterministic")
	}
	if bytes.Equal(DeriveKey("p", "s1"), DeriveKey("p", "s2")) {
		t.Error("different salts must derive different keys")
	}
}
