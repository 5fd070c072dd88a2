package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/policy-oracle/backend/internal/models"
	"go.uber.org/zap"
)

// OnChainRegistrar performs the chain writes for satisfied escrows. The
// Coordinator guarantees Register is called at most once per satisfied
// escrow; implementations do not need to deduplicate.
type OnChainRegistrar interface {
	Register(ctx context.Context, escrow *models.Escrow, policy *models.Policy) (*models.OnChainRef, error)
	Execute(ctx context.Context, onChainID *big.Int) (string, error)
	Cancel(ctx context.Context, onChainID *big.Int, reason string) (string, error)
}

// RelayerRegistrar talks to the internal transaction relayer, which holds the
// operator key and submits transactions. Every call carries an
// Idempotency-Key so retried requests map onto the same transaction.
type RelayerRegistrar struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

func NewRelayerRegistrar(baseURL, token string, maxRetries int, log *zap.Logger) *RelayerRegistrar {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RelayerRegistrar{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		log:        log,
	}
}

type registerRequest struct {
	EscrowID           string `json:"escrow_id"`
	PolicyID           string `json:"policy_id"`
	RolesRoot          string `json:"roles_root"`
	Threshold          int    `json:"threshold"`
	TotalAmount        string `json:"total_amount"`
	Deadline           *int64 `json:"deadline,omitempty"`
	ScheduledReleaseAt *int64 `json:"scheduled_release_at,omitempty"`
}

type txResponse struct {
	TxHash    string `json:"tx_hash"`
	OnChainID string `json:"on_chain_id,omitempty"`
}

func (r *RelayerRegistrar) Register(ctx context.Context, escrow *models.Escrow, policy *models.Policy) (*models.OnChainRef, error) {
	amount := "0"
	if escrow.TotalAmount != nil {
		amount = escrow.TotalAmount.String()
	}
	body := registerRequest{
		EscrowID:           escrow.ID.String(),
		PolicyID:           policy.ID.String(),
		RolesRoot:          policy.RolesRoot,
		Threshold:          policy.Threshold,
		TotalAmount:        amount,
		Deadline:           unixPtr(escrow.Deadline),
		ScheduledReleaseAt: unixPtr(escrow.ScheduledReleaseAt),
	}

	var resp txResponse
	if err := r.post(ctx, "/internal/escrows/register", "register:"+escrow.ID.String(), body, &resp); err != nil {
		return nil, err
	}

	onChainID, ok := new(big.Int).SetString(resp.OnChainID, 10)
	if !ok || onChainID.Sign() < 0 {
		return nil, newError(KindRegistrationFault, nil, "relayer returned invalid on-chain id %q", resp.OnChainID)
	}
	txHash, err := parseTxHash(resp.TxHash)
	if err != nil {
		return nil, newError(KindRegistrationFault, err, "relayer returned invalid tx hash")
	}
	return &models.OnChainRef{TxHash: txHash, OnChainID: onChainID}, nil
}

func (r *RelayerRegistrar) Execute(ctx context.Context, onChainID *big.Int) (string, error) {
	var resp txResponse
	path := fmt.Sprintf("/internal/escrows/%s/execute", onChainID)
	if err := r.post(ctx, path, "execute:"+onChainID.String(), struct{}{}, &resp); err != nil {
		return "", err
	}
	return faultTxHash(resp.TxHash)
}

func (r *RelayerRegistrar) Cancel(ctx context.Context, onChainID *big.Int, reason string) (string, error) {
	var resp txResponse
	path := fmt.Sprintf("/internal/escrows/%s/cancel", onChainID)
	body := map[string]string{"reason": reason}
	if err := r.post(ctx, path, "cancel:"+onChainID.String(), body, &resp); err != nil {
		return "", err
	}
	return faultTxHash(resp.TxHash)
}

// post sends body and decodes the JSON reply into out. Transport errors, 429
// and 5xx replies are retried with linear backoff; other statuses fail at once.
func (r *RelayerRegistrar) post(ctx context.Context, path, idemKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := r.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return newError(KindRegistrationFault, ctx.Err(), "relayer call %s aborted after %d attempts", path, attempt)
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", idemKey)
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("relayer unavailable: %w", err)
			r.log.Warn("relayer call failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("relayer returned %d: %s", resp.StatusCode, string(raw))
			r.log.Warn("relayer call failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Int("status", resp.StatusCode))
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return newError(KindRegistrationFault, nil, "relayer rejected %s with %d: %s", path, resp.StatusCode, string(raw))
		}
		if readErr != nil {
			return newError(KindRegistrationFault, readErr, "read relayer response")
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return newError(KindRegistrationFault, err, "decode relayer response")
		}
		return nil
	}

	return newError(KindRegistrationFault, lastErr, "relayer call %s failed", path)
}

func parseTxHash(s string) (string, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid tx hash %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return "", fmt.Errorf("invalid tx hash length %d", len(b))
	}
	return common.BytesToHash(b).Hex(), nil
}

func faultTxHash(s string) (string, error) {
	h, err := parseTxHash(s)
	if err != nil {
		return "", newError(KindRegistrationFault, err, "relayer returned invalid tx hash")
	}
	return h, nil
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}
