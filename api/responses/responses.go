package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteOutcome renders a typed intent outcome. Outcomes other than dispatch
// are answers, not failures, so they share the success status.
func WriteOutcome(w http.ResponseWriter, outcome string, data any) {
	writeJSON(w, http.StatusOK, types.OutcomeEnvelope{Outcome: outcome, Data: data})
}

// WriteError maps err onto its public envelope. Client errors are logged at
// warn level, server errors at error level with the driver diagnostics.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(typed.Code()),
			Message: meta.PublicMessage,
		},
	}
	if m := typed.Message(); meta.EchoMessage && m != "" {
		payload.Error.Message = m
	}
	if meta.DetailsAllowed {
		payload.Error.Details = typed.Details()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, pkgerrors.Fields(err))
		if meta.HTTPStatus < http.StatusInternalServerError {
			logCtx = logg.WithFields(logCtx, map[string]any{
				"error":      err.Error(),
				"error_code": typed.Code(),
			})
			logg.Warn(logCtx, "request.rejected")
		} else {
			logCtx = logg.WithFields(logCtx, pkgerrors.Dump(err).LogFields())
			logg.Error(logCtx, "request.error", err)
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
