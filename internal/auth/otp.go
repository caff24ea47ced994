package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/samber/oops"
)

const otpDigits = 6

var otpSpace = big.NewInt(1_000_000)

// OtpGenerator produces six-digit numeric one-time codes.
type OtpGenerator struct {
	rand io.Reader
}

// NewOtpGenerator creates a generator backed by crypto/rand.
func NewOtpGenerator() *OtpGenerator {
	return &OtpGenerator{rand: rand.Reader}
}

// Generate returns a code sampled uniformly from 000000-999999.
func (g *OtpGenerator) Generate() (string, error) {
	n, err := rand.Int(g.rand, otpSpace)
	if err != nil {
		return "", oops.In("auth").Code("AUTH_OTP_GENERATE_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
