package accounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodePrefix is the literal prefix of every verification code. Codes are the
// prefix followed by exactly six ASCII digits, e.g. CASHCORE042017.
const CodePrefix = "CASHCORE"

const codeDigits = 6

// NewVerificationCode generates a fresh code for a user to publish in their bio.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%s%0*d", CodePrefix, codeDigits, n.Int64()), nil
}
