package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of an artifact encryption key.
const KeySize = chacha20poly1305.KeySize

// magic prefixes every sealed artifact. The trailing digit is the format version.
var magic = []byte("HBK1")

const keyInfo = "hostbackup artifact key v1"

// ErrNotSealed is returned when Open is given bytes without the sealed header.
var ErrNotSealed = errors.New("payload is not a sealed artifact")

// GenerateKey returns a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under key. Each call uses
// a fresh random nonce.
func Seal(plaintext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, magic), nil
}

// Open decrypts a payload produced by Seal.
func Open(sealed, key []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, magic) {
		return nil, ErrNotSealed
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	body := sealed[len(magic):]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := body[:aead.NonceSize()], body[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, magic)
	if err != nil {
		return nil, fmt.Errorf("decrypt artifact: %w", err)
	}
	return plaintext, nil
}

// ResolveKey loads the key material named by ref and derives an artifact key
// from it. Supported references:
//
//	env:NAME   key material in environment variable NAME
//	file:PATH  key material in a file
//
// Material may be hex, base64 or raw bytes. It is stretched with HKDF-SHA256
// so any reasonably long secret yields a valid key.
func ResolveKey(ref string) ([]byte, error) {
	scheme, target, ok := strings.Cut(ref, ":")
	if !ok || target == "" {
		return nil, fmt.Errorf("invalid key reference %q", ref)
	}

	var material []byte
	switch scheme {
	case "env":
		v := os.Getenv(target)
		if v == "" {
			return nil, fmt.Errorf("key reference %q: environment variable is empty", ref)
		}
		material = []byte(v)
	case "file":
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, fmt.Errorf("key reference %q: %w", ref, err)
		}
		material = bytes.TrimSpace(data)
	default:
		return nil, fmt.Errorf("key reference %q: unsupported scheme %q", ref, scheme)
	}

	material = decodeMaterial(material)
	if len(material) < 16 {
		return nil, fmt.Errorf("key reference %q: key material shorter than 16 bytes", ref)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func decodeMaterial(m []byte) []byte {
	s := strings.TrimSpace(string(m))
	if b, err := hex.DecodeString(s); err == nil && len(b) > 0 {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) > 0 {
		return b
	}
	return m
}
