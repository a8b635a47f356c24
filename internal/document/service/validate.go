package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/go-playground/validator/v10"
)

// DefaultMaxContentChars matches the content size limit of the document tables.
const DefaultMaxContentChars = 5000

const defaultTitle = "Untitled"

// CreateInput is the payload of createDocument.
type CreateInput struct {
	Title         string        `json:"title" validate:"max=200"`
	Type          document.Type `json:"type" validate:"required,oneof=resume letter sop"`
	Content       string        `json:"content" validate:"maxchars"`
	ContentFormat string        `json:"contentFormat" validate:"omitempty,oneof=markdown plain html"`
}

// VersionInput is the payload of saveNewVersion.
type VersionInput struct {
	Content       string `json:"content" validate:"maxchars"`
	ContentFormat string `json:"contentFormat" validate:"omitempty,oneof=markdown plain html"`
}

type renameInput struct {
	Title string `validate:"required,max=200"`
}

// newValidator registers "maxchars", which counts runes rather than bytes so
// the limit means the same thing for every script.
func newValidator(maxChars int) *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("maxchars", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= maxChars
	})
	if err != nil {
		panic(fmt.Sprintf("register maxchars validation: %v", err))
	}
	return v
}

// invalid converts validator output into ErrInvalidInput with a short reason.
func invalid(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", document.ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "maxchars":
			parts = append(parts, fe.Field()+" is too long")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "required":
			parts = append(parts, fe.Field()+" is required")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", document.ErrInvalidInput, strings.Join(parts, "; "))
}
