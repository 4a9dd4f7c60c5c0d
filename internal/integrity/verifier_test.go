package integrity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestChecksum_KnownValue(t *testing.T) {
	v := NewVerifier()
	path := writeFile(t, "hello")

	sum, err := v.Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestChecksum_MatchesChecksumBytes(t *testing.T) {
	v := NewVerifier()
	path := writeFile(t, "some artifact bytes")

	sum, err := v.Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, v.ChecksumBytes([]byte("some artifact bytes")), sum)
}

func TestChecksum_MissingFile(t *testing.T) {
	v := NewVerifier()
	_, err := v.Checksum(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open artifact")
}

func TestVerify(t *testing.T) {
	v := NewVerifier()
	path := writeFile(t, "hello")
	good := "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	tests := []struct {
		name     string
		path     string
		expected string
		want     bool
	}{
		{"match", path, good, true},
		{"uppercase hex", path, "sha256:2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", true},
		{"mismatch", path, "sha256:0000000000000000000000000000000000000000000000000000000000000000", false},
		{"unknown algorithm", path, "md5:5d41402abc4b2a76b9719d911017c592", false},
		{"no prefix", path, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", false},
		{"empty", path, "", false},
		{"unreadable", filepath.Join(t.TempDir(), "gone"), good, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Verify(tt.path, tt.expected))
		})
	}
}
