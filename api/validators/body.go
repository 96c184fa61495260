package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
)

const (
	// MaxBodyBytes caps JSON payloads; the largest legit body is a donor message.
	MaxBodyBytes = 64 << 10

	msgInvalidBody = "Requisição inválida"
	msgInvalidData = "Dados inválidos"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// DecodeJSONBody reads one JSON object into dest and runs its validate tags.
// Unknown fields and trailing data are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return bodyError(err)
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, msgInvalidBody).WithDetails(map[string]any{"error": "unexpected data after JSON object"})
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func bodyError(err error) *pkgerrors.Error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgInvalidBody).WithDetails(map[string]any{"error": "empty body"})
	case errors.As(err, &tooLarge):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgInvalidBody).WithDetails(map[string]any{"error": "body too large", "max_bytes": tooLarge.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgInvalidBody).WithDetails(map[string]any{"error": err.Error()})
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := make(map[string]string, len(errs))
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, msgInvalidData).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgInvalidData)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "obrigatório"
	case "min":
		return fmt.Sprintf("mínimo %s", fe.Param())
	case "max":
		return fmt.Sprintf("máximo %s", fe.Param())
	case "uuid", "uuid4":
		return "deve ser um UUID"
	case "email":
		return "deve ser um e-mail válido"
	}
	return "inválido"
}
