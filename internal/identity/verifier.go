package identity

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrRejected is returned when credentials do not grant the admin identity.
var ErrRejected = errors.New("invalid credentials")

// Verifier is the pluggable admin identity check: the engine never embeds a
// literal secret, it only consumes this gate.
type Verifier interface {
	VerifyAdmin(nickname, passcode string) error
}

// EnvVerifier checks the admin nickname and passcode against configured
// values. When a bcrypt hash is configured it takes precedence over the
// plaintext passcode (the plaintext form exists for local development only).
type EnvVerifier struct {
	nickname     string
	passcodeHash string
	passcode     string
}

// NewEnvVerifier creates a verifier from configuration.
func NewEnvVerifier(nickname, passcodeHash, passcode string) *EnvVerifier {
	return &EnvVerifier{nickname: nickname, passcodeHash: passcodeHash, passcode: passcode}
}

// VerifyAdmin implements Verifier.
func (v *EnvVerifier) VerifyAdmin(nickname, passcode string) error {
	nameOK := subtle.ConstantTimeCompare([]byte(nickname), []byte(v.nickname)) == 1
	var passOK bool
	if v.passcodeHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(v.passcodeHash), []byte(passcode)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(passcode), []byte(v.passcode)) == 1
	}
	if !nameOK || !passOK {
		return ErrRejected
	}
	return nil
}

// HashPasscode hashes a plain passcode with bcrypt, for generating the
// ADMIN_PASSCODE_HASH value.
func HashPasscode(passcode string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	return string(b), err
}
