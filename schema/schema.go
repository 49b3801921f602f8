// Package schema declares the request payloads accepted by the API and the
// rules each one must satisfy before any backend call is made.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SongSearch is the body of POST /tracks/search. SearchQuery must be
// present but may be empty; the backend reports empty queries itself.
type SongSearch struct {
	SearchQuery *string  `json:"searchQuery" validate:"required"`
	Tags        []string `json:"tags,omitempty"`
}

// SongTempUpload is the body of POST /tracks/upload/details.
type SongTempUpload struct {
	Name *string  `json:"name" validate:"required"`
	Tags []string `json:"tags" validate:"required"`
}

// TrackFinalize is the body of POST /tracks/upload/finalize.
type TrackFinalize struct {
	ID string `json:"id" validate:"required"`
}

type UserCreate struct {
	Email           string  `json:"email" validate:"required,email"`
	Password        *string `json:"password" validate:"required"`
	ConfirmPassword *string `json:"confirmPassword" validate:"required"`
	Username        *string `json:"username" validate:"required"`
}

type UserSignIn struct {
	Email    string  `json:"email" validate:"required,email"`
	Password *string `json:"password" validate:"required"`
}

type UserOTPVerify struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"len=6"`
}

type UserRefreshToken struct {
	RefreshToken *string `json:"refreshToken" validate:"required"`
}

// Issue is a single failed rule.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned when a payload cannot be decoded or breaks a rule.
type ValidationError struct {
	Message string  `json:"message"`
	Issues  []Issue `json:"issues,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks v against its struct tags.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}
	out := &ValidationError{Message: "Invalid request body"}
	for _, fe := range verrs {
		out.Issues = append(out.Issues, Issue{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: issueMessage(fe),
		})
	}
	return out
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "This isn't a valid email"
	case "len":
		return fmt.Sprintf("Must contain exactly %s character(s)", fe.Param())
	default:
		return fmt.Sprintf("Failed on the %q rule", fe.Tag())
	}
}

// DecodeJSON decodes a JSON body into dst and validates it.
func DecodeJSON(r io.Reader, dst interface{}) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return &ValidationError{Message: "Malformed JSON body: " + err.Error()}
	}
	return Validate(dst)
}
