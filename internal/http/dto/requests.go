package dto

type NonceRequest struct {
	Address string `json:"address"`
}

type LoginRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// AddApprovalRequest carries the optional evidence of an approval. The
// guardian is always the authenticated wallet.
type AddApprovalRequest struct {
	Signature   *string  `json:"signature,omitempty"`    // EIP-191 over "Approve escrow <id>"
	MerkleProof []string `json:"merkle_proof,omitempty"` // derived from the policy when omitted
}

type CancelEscrowRequest struct {
	Reason string `json:"reason"`
}

type CreatePolicyRequest struct {
	Name            string   `json:"name"`
	Threshold       int      `json:"threshold"`
	MaxAmount       *string  `json:"max_amount,omitempty"` // decimal, omitted = unbounded
	TimelockSeconds int64    `json:"timelock_seconds"`
	Guardians       []string `json:"guardians"`
	Active          *bool    `json:"active,omitempty"`
}

type BuildRootRequest struct {
	Addresses []string `json:"addresses"`
	PolicyID  *string  `json:"policy_id,omitempty"` // stores the root on the policy when set
}

type BuildProofRequest struct {
	Address   string   `json:"address"`
	Addresses []string `json:"addresses,omitempty"`
	PolicyID  *string  `json:"policy_id,omitempty"` // use the policy's guardian set instead of addresses
}
