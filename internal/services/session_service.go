package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/auth"
	"github.com/policy-oracle/backend/internal/evm"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/rbac"
	"go.uber.org/zap"
)

type NonceStore interface {
	Issue(ctx context.Context, address string) (string, error)
	Consume(ctx context.Context, address, nonce string) error
}

type MemberDirectory interface {
	GetByAddress(ctx context.Context, address string) (*models.Member, error)
}

type SessionConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	IsOperator    func(address string) bool
}

// SessionService signs wallets in with an EIP-191 signature over a one-time
// nonce and issues JWT sessions.
type SessionService struct {
	nonces  NonceStore
	members MemberDirectory
	audit   AuditLogger
	cfg     SessionConfig
	log     *zap.Logger
}

func NewSessionService(nonces NonceStore, members MemberDirectory, audit AuditLogger, cfg SessionConfig, log *zap.Logger) *SessionService {
	if cfg.IsOperator == nil {
		cfg.IsOperator = func(string) bool { return false }
	}
	return &SessionService{nonces: nonces, members: members, audit: audit, cfg: cfg, log: log}
}

type Challenge struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type Session struct {
	Token      string    `json:"token"`
	GuardianID uuid.UUID `json:"guardian_id"`
	Address    string    `json:"address"`
	Role       string    `json:"role"`
}

// IssueChallenge returns the message the wallet must sign to log in.
func (s *SessionService) IssueChallenge(ctx context.Context, address string) (*Challenge, error) {
	addr, err := evm.NormalizeAddress(address)
	if err != nil {
		return nil, newError(KindInvalidArgument, err, "invalid wallet address")
	}
	nonce, err := s.nonces.Issue(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Challenge{Address: addr, Nonce: nonce, Message: evm.LoginMessage(addr, nonce)}, nil
}

// Login consumes the nonce before checking the signature, so every nonce
// gets exactly one attempt.
func (s *SessionService) Login(ctx context.Context, address, nonce, signature string) (*Session, error) {
	addr, err := evm.NormalizeAddress(address)
	if err != nil {
		return nil, newError(KindInvalidArgument, err, "invalid wallet address")
	}

	if err := s.nonces.Consume(ctx, addr, nonce); err != nil {
		if errors.Is(err, auth.ErrNonceNotFound) {
			return nil, newError(KindUnauthorized, err, "login nonce rejected")
		}
		return nil, err
	}
	if err := evm.VerifySignature(addr, evm.LoginMessage(addr, nonce), signature); err != nil {
		return nil, newError(KindInvalidSignature, err, "invalid login signature")
	}

	guardianID, role, err := s.resolveRole(ctx, addr)
	if err != nil {
		return nil, err
	}

	token, err := auth.GenerateJWT(s.cfg.JWTSecret, guardianID, addr, role, s.cfg.JWTExpiration)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorID:    &guardianID,
		ActorType:  role,
		Action:     "session_created",
		EntityType: "session",
		Meta:       map[string]any{"address": addr},
	})
	s.log.Info("wallet logged in",
		zap.String("address", addr),
		zap.String("role", role),
	)

	return &Session{Token: token, GuardianID: guardianID, Address: addr, Role: role}, nil
}

// resolveRole maps a wallet to its session identity. Operators get a stable
// id derived from their address; guardians use their member id.
func (s *SessionService) resolveRole(ctx context.Context, addr string) (uuid.UUID, string, error) {
	if s.cfg.IsOperator(addr) {
		return OperatorID(addr), rbac.RoleOperator, nil
	}

	member, err := s.members.GetByAddress(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, "", newError(KindUnauthorized, nil, "wallet %s is not a guardian", addr)
	}
	if err != nil {
		return uuid.Nil, "", err
	}
	return member.ID, rbac.RoleGuardian, nil
}

// OperatorID is the deterministic session id of an operator wallet.
func OperatorID(address string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("operator:"+strings.ToLower(address)))
}
