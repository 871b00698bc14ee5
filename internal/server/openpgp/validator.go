// Package openpgp wraps the gopenpgp parser behind the small surface the
// escrow services need: armored public key validation under named rulesets,
// fingerprint normalization, and structural checks on encrypted messages.
package openpgp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ProtonMail/gopenpgp/v3/crypto"

	"github.com/teamvault/escrow/internal/common"
)

// Ruleset names the validation profile applied to an armored key.
type Ruleset string

const (
	// RulesetStrict applies to newly activated organization keys: the key
	// must parse, be public, be non-expired, not self-revoked, and capable
	// of encryption.
	RulesetStrict Ruleset = "strict"

	// RulesetRevoked applies to keys submitted as revocations of an existing
	// organization key. Its only purpose is to signal the prior identity of
	// the key, so expiry and capability rules are not enforced.
	RulesetRevoked Ruleset = "revoked"
)

var (
	// ErrInvalidKeyFormat is returned when the armor block cannot be parsed.
	ErrInvalidKeyFormat = errors.New("the armored key could not be parsed")

	// Rule violations under the strict ruleset.
	ErrPrivateKeyProvided = errors.New("the key should be a public key")
	ErrKeyExpired         = errors.New("the key should not be expired")
	ErrKeyRevoked         = errors.New("the key should not be revoked")
	ErrKeyCannotEncrypt   = errors.New("the key should be able to encrypt")

	// ErrFingerprintMismatch is returned when a declared fingerprint differs
	// from the one embedded in the armored key.
	ErrFingerprintMismatch = errors.New("the fingerprint does not match the one of the armored key")
)

// KeyInfo is the structural metadata extracted from an armored public key.
type KeyInfo struct {
	Fingerprint string
	KeyID       string
	Created     time.Time
	Expired     bool
	Revoked     bool
	CanEncrypt  bool
}

var fingerprintRe = regexp.MustCompile(`^[0-9A-F]{40}$`)

// NormalizeFingerprint uppercases s and strips every space so fingerprints
// submitted as "aaaa bbbb ..." compare and store canonically.
func NormalizeFingerprint(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

// IsValidFingerprint reports whether s is a normalized 40-hex-char
// fingerprint.
func IsValidFingerprint(s string) bool {
	return fingerprintRe.MatchString(s)
}

// AssertSameFingerprint fails with ErrFingerprintMismatch unless the two
// fingerprints are identical strings after normalization.
func AssertSameFingerprint(f1, f2 string) error {
	if NormalizeFingerprint(f1) != NormalizeFingerprint(f2) {
		return ErrFingerprintMismatch
	}
	return nil
}

// ParseAndValidatePublicKey parses an armored OpenPGP public key and enforces
// the given ruleset. Any panic escaping the underlying parser is converted to
// ErrInvalidKeyFormat so callers always see a regular error.
func ParseAndValidatePublicKey(armoredKey string, rules Ruleset) (info *KeyInfo, err error) {
	if rules != RulesetStrict && rules != RulesetRevoked {
		return nil, fmt.Errorf("%w: unknown ruleset %q", common.ErrInternalConfiguration, rules)
	}

	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("%w: %v", ErrInvalidKeyFormat, r)
		}
	}()

	key, parseErr := crypto.NewKeyFromArmored(armoredKey)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, parseErr)
	}

	entity := key.GetEntity()
	if entity == nil || entity.PrimaryKey == nil {
		return nil, fmt.Errorf("%w: missing primary key packet", ErrInvalidKeyFormat)
	}

	now := time.Now().Unix()
	info = &KeyInfo{
		Fingerprint: fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint),
		KeyID:       fmt.Sprintf("%X", entity.PrimaryKey.KeyId),
		Created:     entity.PrimaryKey.CreationTime,
		Expired:     key.IsExpired(now),
		Revoked:     key.IsRevoked(now),
		CanEncrypt:  key.CanEncrypt(now),
	}

	if rules == RulesetStrict {
		if key.IsPrivate() {
			return nil, ErrPrivateKeyProvided
		}
		if info.Expired {
			return nil, ErrKeyExpired
		}
		if info.Revoked {
			return nil, ErrKeyRevoked
		}
		if !info.CanEncrypt {
			return nil, ErrKeyCannotEncrypt
		}
	}

	return info, nil
}

// IsParsableMessage reports whether armored is a structurally valid OpenPGP
// message. Escrowed password payloads must satisfy this before storage.
func IsParsableMessage(armored string) bool {
	if strings.TrimSpace(armored) == "" {
		return false
	}
	_, err := crypto.NewPGPMessageFromArmored(armored)
	return err == nil
}
