package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	plaintext := []byte("artifact-bytes-123")
	sealed, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !bytes.Equal(plaintext, opened) {
		t.Fatalf("round-trip failed: got %q, want %q", opened, plaintext)
	}
}

func TestEmptyPlaintext(t *testing.T) {
	key, _ := GenerateKey()

	sealed, err := Seal(nil, key)
	if err != nil {
		t.Fatalf("Seal empty: %v", err)
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Open empty: %v", err)
	}
	if len(opened) != 0 {
		t.Fatalf("expected empty plaintext, got %q", opened)
	}
}

func TestWrongKeyRejected(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	sealed, err := Seal([]byte("secret"), key1)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(sealed, key2); err == nil {
		t.Fatal("expected error opening with wrong key")
	}
}

func TestTamperedCiphertextRejected(t *testing.T) {
	key, _ := GenerateKey()

	sealed, err := Seal([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff

	if _, err := Open(sealed, key); err == nil {
		t.Fatal("expected error opening tampered ciphertext")
	}
}

func TestOpenRejectsUnsealedPayload(t *testing.T) {
	key, _ := GenerateKey()

	_, err := Open([]byte("plain tar bytes"), key)
	if !errors.Is(err, ErrNotSealed) {
		t.Fatalf("expected ErrNotSealed, got %v", err)
	}
}

func TestDifferentCiphertextsForSamePlaintext(t *testing.T) {
	key, _ := GenerateKey()
	plaintext := []byte("same-value")

	s1, _ := Seal(plaintext, key)
	s2, _ := Seal(plaintext, key)

	if bytes.Equal(s1, s2) {
		t.Fatal("expected different ciphertexts due to random nonce")
	}
}

func TestGenerateKeyLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("expected %d-byte key, got %d bytes", KeySize, len(key))
	}
}

func TestResolveKey_Env(t *testing.T) {
	t.Setenv("BACKUP_KEY_TEST", hex.EncodeToString(bytes.Repeat([]byte{7}, 32)))

	k1, err := ResolveKey("env:BACKUP_KEY_TEST")
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	k2, err := ResolveKey("env:BACKUP_KEY_TEST")
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	if len(k1) != KeySize || !bytes.Equal(k1, k2) {
		t.Fatal("expected deterministic 32-byte key")
	}
}

func TestResolveKey_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.key")
	if err := os.WriteFile(path, []byte("a-long-enough-passphrase-for-tests\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	key, err := ResolveKey("file:" + path)
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("expected %d-byte key, got %d", KeySize, len(key))
	}
}

func TestResolveKey_Errors(t *testing.T) {
	t.Setenv("BACKUP_KEY_SHORT", "short")

	for _, ref := range []string{"", "env:", "vault:secret/x", "env:BACKUP_KEY_UNSET_XYZ", "env:BACKUP_KEY_SHORT", "file:/nonexistent/key"} {
		if _, err := ResolveKey(ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}
