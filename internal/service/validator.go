package service

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	apperrors "bitespeed-identity/internal/errors"
	"bitespeed-identity/internal/models"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// E.164 shape: optional '+', no leading zero, at most 15 digits
var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{0,14}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")

// JSON numbers are only taken as phones when they are plain non-negative integers
var digitsPattern = regexp.MustCompile(`^[0-9]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
	return v
}

// Identity is a validated, normalized request: at least one field is non-nil
type Identity struct {
	Email       *string
	PhoneNumber *string
}

// ParseIdentifyRequest decodes and validates an /identify body
func ParseIdentifyRequest(r io.Reader) (Identity, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return Identity{}, apperrors.NewInvalidInput("request body could not be read")
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return Identity{}, apperrors.NewInvalidInput("request body must be a JSON object")
	}

	var req models.IdentifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return Identity{}, apperrors.NewInvalidInput("email must be a string and phoneNumber a string or number")
		}
		return Identity{}, apperrors.NewInvalidInput("request body must be a JSON object")
	}

	return ValidateIdentity(req)
}

// ValidateIdentity normalizes the two optional fields and checks their shape
func ValidateIdentity(req models.IdentifyRequest) (Identity, error) {
	var id Identity

	if req.Email != nil {
		if email := strings.ToLower(strings.TrimSpace(*req.Email)); email != "" {
			id.Email = &email
		}
	}

	phone, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return Identity{}, err
	}
	if phone != "" {
		id.PhoneNumber = &phone
	}

	if id.Email == nil && id.PhoneNumber == nil {
		return Identity{}, apperrors.NewInvalidInput("either email or phoneNumber must be provided")
	}
	if id.Email != nil {
		if err := validate.Var(*id.Email, "email"); err != nil {
			return Identity{}, apperrors.NewInvalidInput("invalid email format")
		}
	}
	if id.PhoneNumber != nil {
		if err := validate.Var(*id.PhoneNumber, "phone"); err != nil {
			return Identity{}, apperrors.NewInvalidInput("invalid phoneNumber format")
		}
	}

	return id, nil
}

// normalizePhone accepts a JSON string, a JSON number, null or nothing.
// Separators are stripped from strings only; numbers must be bare digits.
func normalizePhone(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return phoneSeparators.Replace(strings.TrimSpace(s)), nil
	}

	var n json.Number
	if raw[0] != '"' {
		if err := json.Unmarshal(raw, &n); err == nil {
			if !digitsPattern.MatchString(n.String()) {
				return "", apperrors.NewInvalidInput("invalid phoneNumber format")
			}
			return n.String(), nil
		}
	}

	return "", apperrors.NewInvalidInput("email must be a string and phoneNumber a string or number")
}
