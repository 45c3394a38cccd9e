package validator

import (
	"errors"
	"fmt"
	"strings"

	"inventory/internal/domain/model"
	"inventory/internal/usecase"

	"github.com/go-playground/validator/v10"
)

// 商品の保存前ルール
type productRules struct {
	Name     string `validate:"required,max=50"`
	Unit     string `validate:"required,oneof=kg g l ml piece box pack"`
	Category string `validate:"required,oneof=Electronics Clothing Food Books Toys Other"`
	Brand    string `validate:"max=30"`
	Stock    int64  `validate:"gte=0"`
}

type productValidator struct {
	validate *validator.Validate
}

func NewProductValidator() usecase.ProductValidator {
	return &productValidator{validate: validator.New()}
}

// ValidateProduct は最初に違反したフィールドをメッセージにして返す。
func (v *productValidator) ValidateProduct(p model.Product) error {
	err := v.validate.Struct(productRules{
		Name:     p.Name,
		Unit:     string(p.Unit),
		Category: string(p.Category),
		Brand:    p.Brand,
		Stock:    p.Stock,
	})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrInvalidInput
	}
	return errors.New(message(verrs[0]))
}

func message(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
