package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Codes whose own message is written for the caller.
var clientFacing = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeForbidden:     true,
	pkgerrors.CodeUnauthorized:  true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeRateLimit:     true,
}

// Sent verbatim when the real payload cannot be encoded.
var encodeFailureBody = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}` + "\n")

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError maps err to its code's HTTP status. Untyped errors become
// INTERNAL_ERROR and never leak their text.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := APIError{Code: string(typed.Code()), Message: publicMessage(typed, meta)}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logRejection(ctx, logg, err, typed, meta.HTTPStatus)
	}
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: apiErr})
}

// publicMessage prefers an explicit public message, then the error's own
// message for client-facing codes, then the generic text for the code.
func publicMessage(typed *pkgerrors.Error, meta pkgerrors.Metadata) string {
	if public := typed.PublicMessage(); public != "" {
		return public
	}
	if m := typed.Message(); m != "" && clientFacing[typed.Code()] {
		return m
	}
	return meta.PublicMessage
}

func logRejection(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	fields := pkgerrors.Dump(err).Fields()
	fields["status"] = status
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(encodeFailureBody)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
