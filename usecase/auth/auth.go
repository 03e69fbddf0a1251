package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

const minPasswordLen = 8

// TokenSigner issues access tokens for an authenticated principal.
type TokenSigner interface {
	Sign(p domain.Principal) (string, time.Time, error)
}

type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *domain.Account `json:"account"`
}

type RegisterInput struct {
	Email     string
	Name      string
	Password  string
	Role      domain.Role
	StoreID   string
	PartnerID string
}

type UseCase struct {
	accounts repository.AccountRepository
	tokens   TokenSigner
	logger   *zap.Logger
}

func New(accounts repository.AccountRepository, tokens TokenSigner, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

// Login checks the credentials and issues a token carrying the account's principal.
// Unknown emails, wrong passwords and disabled accounts fail the same way.
func (uc *UseCase) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := uc.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUnauthorized.With("invalid credentials")
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, domain.ErrUnauthorized.With("invalid credentials")
	}
	ok, err := verifyPassword(password, account.PasswordSalt, account.PasswordHash)
	if err != nil {
		uc.logger.Error("stored password hash unreadable", zap.String("account_id", account.ID), zap.Error(err))
		return nil, domain.ErrUnauthorized.With("invalid credentials")
	}
	if !ok {
		uc.logger.Warn("login rejected", zap.String("account_id", account.ID))
		return nil, domain.ErrUnauthorized.With("invalid credentials")
	}

	token, expires, err := uc.tokens.Sign(account.Principal())
	if err != nil {
		return nil, domain.Internal("sign token", err)
	}
	uc.logger.Info("login", zap.String("account_id", account.ID), zap.String("role", string(account.Role)))
	return &Session{Token: token, ExpiresAt: expires, Account: account}, nil
}

// Register creates an account. Store-bound roles need a store, partners a partner id.
func (uc *UseCase) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.StoreID = strings.TrimSpace(in.StoreID)
	in.PartnerID = strings.TrimSpace(in.PartnerID)

	problems := map[string][]string{}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		problems["email"] = append(problems["email"], "Invalid email format")
	}
	if len(in.Password) < minPasswordLen {
		problems["password"] = append(problems["password"], "Password is too short")
	}
	if !in.Role.Valid() {
		problems["role"] = append(problems["role"], "Unknown role")
	}
	if (in.Role == domain.RoleLojista || in.Role == domain.RoleVendedor) && in.StoreID == "" {
		problems["store_id"] = append(problems["store_id"], "This field is required")
	}
	if in.Role == domain.RoleParceiro && in.PartnerID == "" {
		problems["partner_id"] = append(problems["partner_id"], "This field is required")
	}
	if len(problems) > 0 {
		return nil, domain.Validation("invalid account", problems)
	}

	hash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal("hash password", err)
	}
	account := &domain.Account{
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		StoreID:      in.StoreID,
		PartnerID:    in.PartnerID,
		Status:       "active",
		PasswordHash: hash,
		PasswordSalt: salt,
	}
	if err := uc.accounts.Upsert(ctx, account); err != nil {
		return nil, err
	}
	uc.logger.Info("account registered", zap.String("account_id", account.ID), zap.String("role", string(account.Role)))
	return account, nil
}
