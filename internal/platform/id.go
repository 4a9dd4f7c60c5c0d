package platform

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const shortIDLength = 10
const backupSuffixLength = 6

// BackupTimeLayout is the timestamp embedded in backup names.
const BackupTimeLayout = "20060102T150405Z"

func NewID() string {
	return uuid.New().String()
}

func NewName(prefix string) string {
	return prefix + randomString(shortIDLength)
}

// NewBackupName returns a unique, sortable artifact name such as
// "shop-20251014T021500Z-k3x9qa.tar.gz".
func NewBackupName(projectID string, at time.Time, ext string) string {
	return projectID + "-" + at.UTC().Format(BackupTimeLayout) + "-" + randomString(backupSuffixLength) + ext
}

func randomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = shortIDAlphabet[b[i]%byte(len(shortIDAlphabet))]
	}
	return string(b)
}
