package services

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var validTxHash = "0x" + strings.Repeat("a1", 32)

func newTestRegistrar(url string, retries int) *RelayerRegistrar {
	r := NewRelayerRegistrar(url, "secret", retries, zap.NewNop())
	r.backoff = time.Millisecond
	return r
}

func testEscrowAndPolicy() (*models.Escrow, *models.Policy) {
	deadline := time.Unix(1_900_000_000, 0)
	policy := &models.Policy{ID: uuid.New(), Threshold: 2, RolesRoot: "0x" + strings.Repeat("00", 32)}
	escrow := &models.Escrow{
		ID:          uuid.New(),
		Status:      models.EscrowStatusApproved,
		PolicyID:    policy.ID,
		TotalAmount: new(big.Int).Lsh(big.NewInt(1), 100),
		Deadline:    &deadline,
	}
	return escrow, policy
}

func TestRelayerRegistrar_Register(t *testing.T) {
	escrow, policy := testEscrowAndPolicy()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/escrows/register", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "register:"+escrow.ID.String(), r.Header.Get("Idempotency-Key"))

		var body registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, escrow.TotalAmount.String(), body.TotalAmount)
		assert.Equal(t, 2, body.Threshold)
		require.NotNil(t, body.Deadline)
		assert.EqualValues(t, 1_900_000_000, *body.Deadline)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tx_hash":"` + validTxHash + `","on_chain_id":"42"}`))
	}))
	defer srv.Close()

	ref, err := newTestRegistrar(srv.URL, 0).Register(context.Background(), escrow, policy)
	require.NoError(t, err)
	assert.Equal(t, validTxHash, ref.TxHash)
	assert.Equal(t, "42", ref.OnChainID.String())
}

func TestRelayerRegistrar_RetriesServerErrors(t *testing.T) {
	escrow, policy := testEscrowAndPolicy()
	var calls atomic.Int32
	keys := make(chan string, 3)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"tx_hash":"` + validTxHash + `","on_chain_id":"7"}`))
	}))
	defer srv.Close()

	ref, err := newTestRegistrar(srv.URL, 3).Register(context.Background(), escrow, policy)
	require.NoError(t, err)
	assert.Equal(t, "7", ref.OnChainID.String())
	assert.EqualValues(t, 3, calls.Load())

	close(keys)
	for k := range keys {
		assert.Equal(t, "register:"+escrow.ID.String(), k)
	}
}

func TestRelayerRegistrar_ClientErrorIsNotRetried(t *testing.T) {
	escrow, policy := testEscrowAndPolicy()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad root"}`))
	}))
	defer srv.Close()

	_, err := newTestRegistrar(srv.URL, 3).Register(context.Background(), escrow, policy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationFault)
	assert.Contains(t, err.Error(), "bad root")
	assert.EqualValues(t, 1, calls.Load())
}

func TestRelayerRegistrar_RetriesExhausted(t *testing.T) {
	escrow, policy := testEscrowAndPolicy()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestRegistrar(srv.URL, 2).Register(context.Background(), escrow, policy)
	assert.ErrorIs(t, err, ErrRegistrationFault)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRelayerRegistrar_InvalidResponse(t *testing.T) {
	escrow, policy := testEscrowAndPolicy()

	tests := []struct {
		name string
		body string
	}{
		{"short tx hash", `{"tx_hash":"0x1234","on_chain_id":"1"}`},
		{"non hex tx hash", `{"tx_hash":"nothex","on_chain_id":"1"}`},
		{"missing on-chain id", `{"tx_hash":"` + validTxHash + `"}`},
		{"negative on-chain id", `{"tx_hash":"` + validTxHash + `","on_chain_id":"-3"}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestRegistrar(srv.URL, 0).Register(context.Background(), escrow, policy)
			assert.ErrorIs(t, err, ErrRegistrationFault)
		})
	}
}

func TestRelayerRegistrar_ExecuteAndCancel(t *testing.T) {
	paths := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path + " " + r.Header.Get("Idempotency-Key")
		_, _ = w.Write([]byte(`{"tx_hash":"` + validTxHash + `"}`))
	}))
	defer srv.Close()

	reg := newTestRegistrar(srv.URL, 0)
	tx, err := reg.Execute(context.Background(), big.NewInt(9))
	require.NoError(t, err)
	assert.Equal(t, validTxHash, tx)

	_, err = reg.Cancel(context.Background(), big.NewInt(9), "deadline passed")
	require.NoError(t, err)

	assert.Equal(t, "/internal/escrows/9/execute execute:9", <-paths)
	assert.Equal(t, "/internal/escrows/9/cancel cancel:9", <-paths)
}

func TestRelayerRegistrar_ContextDeadline(t *testing.T) {
	escrow, policy := testEscrowAndPolicy()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestRegistrar(srv.URL, 5).Register(ctx, escrow, policy)
	assert.ErrorIs(t, err, ErrRegistrationFault)
	assert.Less(t, time.Since(start), time.Second)
}
