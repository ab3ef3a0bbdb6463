package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	// BackupCodeAlphabet drops 0/O and 1/I to avoid transcription mistakes
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	BackupCodeLength   = 10
)

// GenerateBackupCodes returns count codes formatted XXXXX-XXXXX
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		raw, err := randomCode(BackupCodeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, FormatBackupCode(raw))
	}
	return codes, nil
}

func randomCode(n int) (string, error) {
	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate backup code: %w", err)
		}
		b.WriteByte(BackupCodeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode splits a canonical code in two halves for display
func FormatBackupCode(canonical string) string {
	half := len(canonical) / 2
	return canonical[:half] + "-" + canonical[half:]
}

// CanonicalizeBackupCode upper-cases the input and strips separators. It
// returns false when the result cannot be a backup code.
func CanonicalizeBackupCode(input string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		switch {
		case r == '-' || r == ' ':
			continue
		case strings.ContainsRune(BackupCodeAlphabet, r):
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	code := b.String()
	if len(code) != BackupCodeLength {
		return "", false
	}
	return code, true
}

// HashBackupCode is hex(sha256(userID || 0x00 || code)). Salting with the
// user id makes equal codes hash differently per account.
func HashBackupCode(userID, canonical string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}
