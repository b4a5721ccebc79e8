package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature indicates the signature bytes could not be decoded or
// no public key could be recovered from them.
var ErrInvalidSignature = errors.New("wallet: invalid signature")

const signatureLength = 65

// SignatureVerifier recovers the signer address of a personal-sign message.
type SignatureVerifier interface {
	RecoverAddress(message, signatureHex string) (string, error)
}

// PersonalSignVerifier implements EIP-191 personal-message recovery, the
// scheme browser wallets use for personal_sign.
type PersonalSignVerifier struct{}

// NewPersonalSignVerifier constructs the production verifier.
func NewPersonalSignVerifier() PersonalSignVerifier {
	return PersonalSignVerifier{}
}

// RecoverAddress returns the lowercase hex address that signed the message.
func (PersonalSignVerifier) RecoverAddress(message, signatureHex string) (string, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(signatureHex))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != signatureLength {
		return "", fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSignature, signatureLength, len(raw))
	}

	sig := append([]byte(nil), raw...)
	// Wallets emit the recovery id as 27/28; secp256k1 recovery wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("%w: invalid recovery id", ErrInvalidSignature)
	}

	publicKey, err := crypto.SigToPub(personalMessageHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*publicKey).Hex()), nil
}

// personalMessageHash applies the EIP-191 envelope before hashing, matching
// what the wallet hashed when it produced the signature.
func personalMessageHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
