package usecases

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"remnabot/internal/entities"
	"remnabot/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLength = 8

// Claims carried by admin API tokens. BotID is 0 for superadmins.
type Claims struct {
	AdminID int64  `json:"admin_id"`
	Role    string `json:"role"`
	BotID   int64  `json:"bot_id"`
	jwt.RegisteredClaims
}

type AuthUsecase struct {
	store     *repository.Store
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewAuthUsecase(store *repository.Store, secret string, tokenTTL time.Duration) *AuthUsecase {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthUsecase{
		store:     store,
		jwtSecret: []byte(secret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, *entities.Admin, error) {
	s := uc.store.System()
	defer s.Close()

	admin, err := uc.store.Admins.GetByUsername(ctx, s, username)
	if errors.Is(err, entities.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := uc.IssueToken(admin)
	if err != nil {
		return "", nil, err
	}
	return token, admin, nil
}

// IssueToken signs an HS256 token for admin.
func (uc *AuthUsecase) IssueToken(admin *entities.Admin) (string, error) {
	claims := Claims{
		AdminID: admin.ID,
		Role:    admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(uc.now().Add(uc.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(uc.now()),
		},
	}
	if admin.BotID != nil {
		claims.BotID = *admin.BotID
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.jwtSecret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return token, nil
}

// ParseToken validates the signature and expiry of an admin token.
func (uc *AuthUsecase) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return uc.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(uc.now))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCredentials, err.Error())
	}
	if claims.AdminID == 0 || (claims.Role != entities.RoleSuperAdmin && claims.Role != entities.RoleOwner) {
		return nil, errors.Wrap(ErrInvalidCredentials, "malformed claims")
	}
	return claims, nil
}

// CreateAdmin stores a new admin. Owners must be bound to a bot, superadmins
// must not.
func (uc *AuthUsecase) CreateAdmin(ctx context.Context, s *repository.Session, username, password, role string, botID *int64, opts ...repository.WriteOption) (*entities.Admin, error) {
	switch {
	case username == "":
		return nil, errors.Wrap(entities.ErrInvalidInput, "username is required")
	case len(password) < minPasswordLength:
		return nil, errors.Wrapf(entities.ErrInvalidInput, "password must be at least %d characters", minPasswordLength)
	case role == entities.RoleOwner && botID == nil:
		return nil, errors.Wrap(entities.ErrInvalidInput, "owner needs a bot")
	case role == entities.RoleSuperAdmin && botID != nil:
		return nil, errors.Wrap(entities.ErrInvalidInput, "superadmin cannot be bound to a bot")
	case role != entities.RoleOwner && role != entities.RoleSuperAdmin:
		return nil, errors.Wrapf(entities.ErrInvalidInput, "unknown role %q", role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	admin := &entities.Admin{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         role,
		BotID:        botID,
	}
	if err := uc.store.Admins.Create(ctx, s, admin, opts...); err != nil {
		return nil, err
	}
	return admin, nil
}

// CreateBotOwner creates an owner account and records it on the bot in one
// transaction, so a bot never points at a missing admin and vice versa.
func (uc *AuthUsecase) CreateBotOwner(ctx context.Context, username, password string, botID int64) (*entities.Admin, error) {
	var owner *entities.Admin
	err := repository.RunInTx(ctx, uc.store.DB, func(s *repository.Session) error {
		var err error
		owner, err = uc.CreateAdmin(ctx, s, username, password, entities.RoleOwner, &botID, repository.Deferred())
		if err != nil {
			return err
		}
		return uc.store.Bots.SetOwner(ctx, s, botID, owner.ID, repository.Deferred())
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// EnsureSuperAdmin creates the root account if it does not exist (called on startup)
func (uc *AuthUsecase) EnsureSuperAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	s := uc.store.System()
	defer s.Close()

	_, err := uc.store.Admins.GetByUsername(ctx, s, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return false, err
	}

	if _, err := uc.CreateAdmin(ctx, s, username, password, entities.RoleSuperAdmin, nil); err != nil {
		return false, err
	}
	return true, nil
}
