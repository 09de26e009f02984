package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferralCode creates a random 8-character referral code from an
// unambiguous uppercase alphanumeric alphabet (no 0/O, 1/I).
func GenerateReferralCode() (string, error) {
	code := make([]byte, 8)
	for i := range code {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		code[i] = codeAlphabet[idx.Int64()]
	}
	return string(code), nil
}
