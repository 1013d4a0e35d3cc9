package services

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type JoinRequest struct {
	DisplayName string `json:"username" validate:"required,max=32"`
	Language    string `json:"language" validate:"required,min=2,max=32"`
}

type SendMessageRequest struct {
	SenderID string `json:"senderId" validate:"required"`
	Text     string `json:"text" validate:"required,max=2000"`
}

// ValidateJoin checks the request and normalises the language to its ISO 639-1 code.
func ValidateJoin(req JoinRequest) (JoinRequest, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	req.Language = domain.NormalizeLanguage(req.Language)
	return req, nil
}

func ValidateSendMessage(req SendMessageRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return nil
}
