package evm

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const (
	// LoginPrefix starts every wallet login message.
	LoginPrefix = "Sign in to policy oracle"

	// MaxLoginAge bounds how old a signed login message may be.
	MaxLoginAge = 5 * time.Minute
)

// ApprovalMessage is the text a guardian signs (EIP-191 personal_sign) to
// approve an escrow.
func ApprovalMessage(escrowID uuid.UUID) string {
	return "Approve escrow " + escrowID.String()
}

// LoginMessage is the text a wallet signs to obtain a session token.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("%s\naddress: %s\nnonce: %s", LoginPrefix, strings.ToLower(address), nonce)
}

// RecoverSigner returns the address that produced an EIP-191 personal
// signature over message.
//
// Algorithm:
// 1. hash = keccak256("\x19Ethereum Signed Message:\n" ++ len(message) ++ message)
// 2. normalise V from {27,28} to {0,1}
// 3. recover the public key and derive the address
func RecoverSigner(message, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(sigHex))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that address signed message.
func VerifySignature(address, message, sigHex string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address: %s", address)
	}
	signer, err := RecoverSigner(message, sigHex)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(address) {
		return fmt.Errorf("signature was produced by %s, not %s", signer.Hex(), address)
	}
	return nil
}

// NormalizeAddress validates a hex address and returns its checksummed form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address: %s", address)
	}
	return common.HexToAddress(address).Hex(), nil
}
