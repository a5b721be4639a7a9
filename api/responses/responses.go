package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/types"
)

// RequestIDHeader is set on the response by the request id middleware before
// any handler runs.
const RequestIDHeader = "X-Request-Id"

// exposedCodes may surface the error's own message; every other code answers
// with the generic public message for that code.
var exposedCodes = map[pkgerrors.Code]struct{}{
	pkgerrors.CodeValidation:    {},
	pkgerrors.CodeForbidden:     {},
	pkgerrors.CodeUnauthorized:  {},
	pkgerrors.CodeNotFound:      {},
	pkgerrors.CodeConflict:      {},
	pkgerrors.CodeStateConflict: {},
	pkgerrors.CodeIdempotency:   {},
	pkgerrors.CodeOutOfStock:    {},
	pkgerrors.CodeRateLimit:     {},
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto the public error envelope and logs the full chain,
// at warn for client errors and error otherwise. Untyped errors are reported
// as internal errors.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := classify(err)
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.APIError{
		Code:      string(typed.Code()),
		Message:   publicMessage(typed, meta),
		Retryable: meta.Retryable,
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		fields := pkgerrors.Dump(err).Fields()
		fields["http_status"] = meta.HTTPStatus
		if label := productLabel(typed.Details()); label != "" {
			fields["product_label"] = label
		}
		level := zerolog.ErrorLevel
		if meta.HTTPStatus < http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}
		logg.Log(logg.WithFields(ctx, fields), level, "request.error", err)
	}

	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{
		Error:     body,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

func classify(err error) *pkgerrors.Error {
	if err == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown error")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
}

func publicMessage(typed *pkgerrors.Error, meta pkgerrors.Metadata) string {
	if _, ok := exposedCodes[typed.Code()]; ok && typed.Message() != "" {
		return typed.Message()
	}
	return meta.PublicMessage
}

func productLabel(details any) string {
	switch d := details.(type) {
	case map[string]any:
		label, _ := d["product_label"].(string)
		return label
	case map[string]string:
		return d["product_label"]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
