package security

import "crypto/subtle"

// CSRFTokenLength is the required length of the double-submit token:
// 32 random bytes hex-encoded.
const CSRFTokenLength = 64

// GenerateCSRFToken returns a fresh 64-character lowercase hex token.
func GenerateCSRFToken() (string, error) {
	return GenerateHexToken(CSRFTokenLength / 2)
}

// ValidCSRFFormat reports whether the value is exactly 64 lowercase hex
// characters. Both halves of the double-submit pair must pass this check
// before any comparison happens.
func ValidCSRFFormat(value string) bool {
	if len(value) != CSRFTokenLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CSRFTokensMatch compares the cookie and header tokens. Both must be
// well-formed; comparison is constant-time.
func CSRFTokensMatch(cookieToken, headerToken string) bool {
	if !ValidCSRFFormat(cookieToken) || !ValidCSRFFormat(headerToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) == 1
}
