package app

import (
	"context"
	"strings"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/encrypt"
	"direct_chat_service/pkg/logger"
	"direct_chat_service/pkg/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterInput fields for account creation
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// UserUseCase account registration, login and profile maintenance
type UserUseCase struct {
	userRepo repository.UserRepository
	fanout   *Fanout
	issuer   string
}

// NewUserUseCase create UserUseCase
func NewUserUseCase(userRepo repository.UserRepository, fanout *Fanout, issuer string) *UserUseCase {
	return &UserUseCase{userRepo: userRepo, fanout: fanout, issuer: issuer}
}

// Register create an account; email uniqueness is enforced by the store
func (uc *UserUseCase) Register(ctx context.Context, in RegisterInput) (*domain.PublicProfile, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "username and email are required")
	}

	hashed, err := encrypt.HashPassword(in.Password)
	if err != nil {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, err.Error())
	}

	now := time.Now()
	user := &domain.User{
		ID:        uuid.New().String(),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Username:  username,
		Email:     email,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Log.Info("user registered", zap.String("userID", user.ID))
	profile := user.Public()
	return &profile, nil
}

// Login verify credentials and issue a JWT
func (uc *UserUseCase) Login(ctx context.Context, email, password string) (string, *domain.PublicProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, domain.NewChatError(domain.CodeInvalidArgument, "email and password are required")
	}

	user, err := uc.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, domain.NewChatError(domain.CodeNotAuthorized, "invalid email or password")
	}
	if err := encrypt.CheckPassword(user.Password, password); err != nil {
		return "", nil, domain.NewChatError(domain.CodeNotAuthorized, "invalid email or password")
	}

	jwt, err := token.GenerateJWTFunc(user.ID, string(token.RoleUser), uc.issuer)
	if err != nil {
		logger.Log.Errorf("generate token error:", err, zap.String("userID", user.ID))
		return "", nil, domain.NewChatError(domain.CodeUnavailable, "token generation failed")
	}
	profile := user.Public()
	return jwt, &profile, nil
}

// ListUsers directory of every other user, online first
func (uc *UserUseCase) ListUsers(ctx context.Context, callerID string) ([]domain.PublicProfile, error) {
	users, err := uc.userRepo.FindAllExcept(ctx, callerID)
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.PublicProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Public())
	}
	return profiles, nil
}

// Profile one user's public profile
func (uc *UserUseCase) Profile(ctx context.Context, userID string) (*domain.PublicProfile, error) {
	user, err := uc.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NewChatError(domain.CodeNotFound, "user not found")
	}
	profile := user.Public()
	return &profile, nil
}

// Logout mark the account offline
// websocket 那側的 session 清理仍交給 presence lifecycle
func (uc *UserUseCase) Logout(ctx context.Context, userID string) error {
	now := time.Now()
	if err := uc.userRepo.UpdateStatus(ctx, userID, false, &now); err != nil {
		return err
	}
	logger.Log.Info("user logged out", zap.String("userID", userID))
	return nil
}

// UpdateProfile apply a partial profile update and broadcast the new profile
// 空 update 是 INVALID_ARGUMENT, 不落地也不廣播
func (uc *UserUseCase) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.PublicProfile, error) {
	if upd.Empty() {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "no profile fields to update")
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if email == "" {
			return nil, domain.NewChatError(domain.CodeInvalidArgument, "email must not be empty")
		}
		existing, err := uc.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != userID {
			return nil, domain.NewChatError(domain.CodeInvalidArgument, "email already in use")
		}
		upd.Email = &email
	}

	user, err := uc.userRepo.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NewChatError(domain.CodeNotFound, "user not found")
	}

	profile := user.Public()
	uc.fanout.ToAll(ctx, domain.OkResponse(domain.EventUserProfileUpdated, map[string]interface{}{
		"user": profile,
	}), userID)
	logger.Log.Info("profile updated", zap.String("userID", userID))
	return &profile, nil
}
