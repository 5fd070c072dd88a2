package dto

type ErrorResponse struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind,omitempty"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type EvaluationResponse struct {
	EscrowID string   `json:"escrow_id"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type RootResponse struct {
	Root      string   `json:"root"`
	Addresses []string `json:"addresses"`
}

type ProofResponse struct {
	Address string   `json:"address"`
	Root    string   `json:"root"`
	Proof   []string `json:"proof"`
}
