package aps

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/payops/apsgw/infra/config"
)

// Direction selects which phrase of a pair wraps the canonical string.
type Direction string

const (
	SignRequest  Direction = "request"
	SignResponse Direction = "response"
)

// Flavor selects the signing profile. The wallet channel is provisioned with
// its own access code, phrases and hash algorithm.
type Flavor string

const (
	FlavorStandard Flavor = "standard"
	FlavorWallet   Flavor = "wallet"
)

// PhrasePair holds the request and response phrases of one signing profile.
type PhrasePair struct {
	Request  string
	Response string
}

// SigningProfile is a hash algorithm plus its phrase pair.
type SigningProfile struct {
	Algorithm string
	Phrases   PhrasePair
}

// Signer computes gateway signatures. The output must match the processor's
// own computation byte for byte, so the canonical form never reorders or
// reformats values.
type Signer struct {
	profiles map[Flavor]SigningProfile
}

// NewSigner creates a signer with the given per-flavor profiles.
func NewSigner(standard, wallet SigningProfile) *Signer {
	return &Signer{
		profiles: map[Flavor]SigningProfile{
			FlavorStandard: standard,
			FlavorWallet:   wallet,
		},
	}
}

// SignerFromConfig builds a signer from the merchant configuration.
func SignerFromConfig(cfg *config.APSConfig) *Signer {
	return NewSigner(
		SigningProfile{
			Algorithm: cfg.HashAlgorithm,
			Phrases:   PhrasePair{Request: cfg.RequestPhrase, Response: cfg.ResponsePhrase},
		},
		SigningProfile{
			Algorithm: cfg.WalletHashAlgorithm,
			Phrases:   PhrasePair{Request: cfg.WalletRequestPhrase, Response: cfg.WalletResponsePhrase},
		},
	)
}

// Sign canonicalizes params, wraps the string with the phrase for the given
// flavor and direction, and hashes it. The signature parameter itself must
// not be present in params.
func (s *Signer) Sign(params GatewayParams, direction Direction, flavor Flavor) (string, error) {
	profile, ok := s.profiles[flavor]
	if !ok {
		return "", fmt.Errorf("aps: unknown signature flavor %q", flavor)
	}

	phrase := profile.Phrases.Request
	if direction == SignResponse {
		phrase = profile.Phrases.Response
	}

	message := phrase + params.canonical() + phrase

	switch profile.Algorithm {
	case config.HashSHA256:
		sum := sha256.Sum256([]byte(message))
		return hex.EncodeToString(sum[:]), nil
	case config.HashSHA512:
		sum := sha512.Sum512([]byte(message))
		return hex.EncodeToString(sum[:]), nil
	case config.HashHMAC256:
		return hmacHex(sha256.New, phrase, message), nil
	case config.HashHMAC512:
		return hmacHex(sha512.New, phrase, message), nil
	default:
		return "", fmt.Errorf("aps: unsupported hash algorithm %q", profile.Algorithm)
	}
}

func hmacHex(h func() hash.Hash, key, message string) string {
	mac := hmac.New(h, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
