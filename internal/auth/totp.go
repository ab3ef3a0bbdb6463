package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// Fixed authenticator parameters. Apps such as Google Authenticator ignore
// anything else, so these are not configurable.
const (
	TOTPPeriod    = 30
	TOTPDigits    = 6
	TOTPAlgorithm = "SHA1"
	totpSkew      = 1
)

var totpOpts = totp.ValidateOpts{
	Period:    TOTPPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPManager generates, encrypts and validates TOTP secrets
type TOTPManager struct {
	encryptionKey []byte // AES-256
	issuer        string
	now           func() time.Time
}

func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &TOTPManager{encryptionKey: encryptionKey, issuer: issuer, now: time.Now}, nil
}

// GenerateSecret returns a new base32 secret (160 bits, RFC 4226 recommendation)
func (tm *TOTPManager) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: "enrollment",
		SecretSize:  20,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), nil
}

// ProvisioningURI builds the otpauth URI. The label is percent-encoded the
// way encodeURIComponent does it ("@" becomes %40, space %20) and the query
// keeps a fixed parameter order.
func (tm *TOTPManager) ProvisioningURI(secret, accountEmail string) string {
	issuer := encodeURIComponent(tm.issuer)
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=%s&digits=%d&period=%d",
		issuer, encodeURIComponent(accountEmail), secret, issuer, TOTPAlgorithm, TOTPDigits, TOTPPeriod)
}

// QRCodeDataURL renders content as a PNG data URL
func QRCodeDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// uriComponentUnescaper restores the marks encodeURIComponent leaves literal
var uriComponentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func encodeURIComponent(s string) string {
	return uriComponentUnescaper.Replace(url.QueryEscape(s))
}

// EncryptSecret seals the secret with AES-256-GCM. The user id is bound as
// additional data so a ciphertext cannot be moved to another account.
func (tm *TOTPManager) EncryptSecret(userID, secret string) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, []byte(secret), []byte(userID)), nonce, nil
}

func (tm *TOTPManager) DecryptSecret(userID string, ciphertext, nonce []byte) (string, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// MatchStep checks code against the current step and one step either side
// and returns the matched time step. Replay protection is the caller's job:
// a step must only be accepted once.
func (tm *TOTPManager) MatchStep(secret, code string) (int64, bool, error) {
	if !IsTOTPCodeFormat(code) {
		return 0, false, nil
	}

	now := tm.now()
	for offset := -totpSkew; offset <= totpSkew; offset++ {
		at := now.Add(time.Duration(offset*TOTPPeriod) * time.Second)
		expected, err := totp.GenerateCodeCustom(secret, at, totpOpts)
		if err != nil {
			return 0, false, fmt.Errorf("failed to generate TOTP code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return at.Unix() / TOTPPeriod, true, nil
		}
	}
	return 0, false, nil
}

// IsTOTPCodeFormat reports whether s is exactly six ASCII digits
func IsTOTPCodeFormat(s string) bool {
	if len(s) != TOTPDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
