package validator

import (
	"context"
	"fmt"
	"strings"

	"inventory/internal/repository"
	"inventory/internal/usecase"

	"github.com/go-playground/validator/v10"
)

var (
	// 入力が不正（400）
	ErrInvalidInput = fmt.Errorf("%w: invalid input", usecase.ErrValidation)

	// emailが既に使用済み（409）
	ErrEmailAlreadyUsed = fmt.Errorf("%w: email already used", usecase.ErrConflict)
)

type registerInput struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=72"`
}

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type authValidator struct {
	users    repository.UserRepository
	validate *validator.Validate
}

// Usecaseは interface を依存注入
func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users, validate: validator.New()}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, username string, email string, password string) error {
	in := registerInput{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	if err := v.validate.Struct(in); err != nil {
		return ErrInvalidInput
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, in.Email)
	if err == nil && u != nil {
		return ErrEmailAlreadyUsed
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	in := loginInput{Email: strings.TrimSpace(email), Password: password}
	if err := v.validate.Struct(in); err != nil {
		return ErrInvalidInput
	}
	return nil
}
