// Package auth handles the shared password, the session table and the
// middleware that resolves a session cookie on every request.
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is a security feature: it makes brute-force attacks expensive.
//
// The app has exactly one password, shared by both of its users, and it comes
// from the environment. It is hashed once at startup (SharedSecret) so the
// plaintext is not kept around, and every login attempt is compared with
// bcrypt's constant-time compare.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 = 4096 iterations)
//	 version
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor.
//
// Cost 12 takes roughly 250ms per compare, which also slows down password
// guessing on top of the login rate limit.
const defaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs would be silently
// truncated.
const maxPasswordBytes = 72

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests. A lower cost (e.g. 4) makes tests run much faster
// without compromising the logic being tested.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// newPasswordServiceWithCost creates a PasswordService with a custom cost.
// Unexported helper used by the tests in this package.
func newPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest creates a PasswordService with bcrypt cost 4
// (the minimum allowed). Use this in tests in other packages to avoid the
// ~250ms overhead of cost 12 per hashing operation.
//
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string like:
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// It includes the salt and cost; bcrypt.CompareHashAndPassword knows how
// to decode it.
//
// Returns an error if the plaintext is longer than 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		// bcrypt silently truncates passwords longer than 72 bytes.
		// We reject them explicitly so callers aren't surprised.
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil if they match, a non-nil error if they don't.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so an attacker can't tell from response time whether they got the first
// byte right.
//
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// SharedSecret is the hashed form of the configured app password.
type SharedSecret struct {
	passwords *PasswordService
	hash      string
}

// NewSharedSecret hashes the configured password. It fails for an empty
// password or one longer than 72 bytes.
func NewSharedSecret(passwords *PasswordService, plaintext string) (*SharedSecret, error) {
	if plaintext == "" {
		return nil, fmt.Errorf("auth: shared password must not be empty")
	}
	hash, err := passwords.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	return &SharedSecret{passwords: passwords, hash: hash}, nil
}

// Matches reports whether candidate is the shared password.
func (s *SharedSecret) Matches(candidate string) bool {
	// Without this, any candidate sharing the first 72 bytes would match.
	if len(candidate) > maxPasswordBytes {
		return false
	}
	return s.passwords.Verify(s.hash, candidate) == nil
}
