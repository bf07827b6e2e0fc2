package security

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret provisions a new TOTP key for the account. The
// returned key carries both the base32 secret and the otpauth:// URL for
// authenticator enrollment.
func GenerateTOTPSecret(issuer, accountName string) (*otp.Key, error) {
	if issuer == "" || accountName == "" {
		return nil, fmt.Errorf("issuer and account name are required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	return key, nil
}

// ValidateTOTPCode checks a 6-digit code against the secret with a skew of
// one 30-second step in each direction to absorb clock drift.
func ValidateTOTPCode(code, secret string, at time.Time) bool {
	if code == "" || secret == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
