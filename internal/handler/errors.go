package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/scent-shop/internal/domain/auth"
	"github.com/xenking/scent-shop/internal/domain/order"
)

// apiError is the {"code","message","product"} error body.
type apiError struct {
	Code      int
	Message   string
	ProductID string
}

// toAPIError maps domain errors to HTTP responses.
func toAPIError(err error) apiError {
	var (
		persistErr  *order.PersistenceError
		stockErr    *order.InsufficientStockError
		notFoundErr *order.ProductNotFoundError
		qtyErr      *order.InvalidQuantityError
	)
	switch {
	case errors.Is(err, errBadRequest):
		return apiError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, auth.ErrUnauthenticated):
		return apiError{Code: http.StatusUnauthorized, Message: "authentication required"}
	case errors.As(err, &persistErr):
		return apiError{Code: http.StatusInternalServerError, Message: "order could not be stored"}
	case errors.As(err, &stockErr):
		return apiError{Code: http.StatusBadRequest, Message: stockErr.Error(), ProductID: stockErr.ProductID}
	case errors.As(err, &notFoundErr):
		return apiError{Code: http.StatusNotFound, Message: notFoundErr.Error(), ProductID: notFoundErr.ProductID}
	case errors.As(err, &qtyErr):
		return apiError{Code: http.StatusBadRequest, Message: qtyErr.Error(), ProductID: qtyErr.ProductID}
	case errors.Is(err, order.ErrStatusConflict):
		return apiError{Code: http.StatusConflict, Message: order.ErrStatusConflict.Error()}
	}

	switch order.KindOf(err) {
	case order.KindValidation:
		return apiError{Code: http.StatusBadRequest, Message: rootMessage(err)}
	case order.KindNotFound:
		return apiError{Code: http.StatusNotFound, Message: order.ErrNotFound.Error()}
	case order.KindForbidden:
		return apiError{Code: http.StatusForbidden, Message: order.ErrForbidden.Error()}
	default:
		return apiError{Code: http.StatusInternalServerError, Message: "internal server error"}
	}
}

// rootMessage drops the service's wrapping context from validation errors.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := toAPIError(err)

	lg := zctx.From(r.Context())
	if resp.Code >= http.StatusInternalServerError {
		fields := []zap.Field{zap.Error(err)}
		var persistErr *order.PersistenceError
		if errors.As(err, &persistErr) && persistErr.NeedsReconciliation() {
			fields = append(fields, zap.Bool("reconciliation_required", true))
		}
		lg.Error("Request failed", fields...)
	} else {
		lg.Debug("Request rejected", zap.Int("code", resp.Code), zap.Error(err))
	}

	if resp.Code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="scent-shop"`)
	}
	writeJSON(w, resp.Code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(resp.Code)
		e.FieldStart("message")
		e.Str(resp.Message)
		if resp.ProductID != "" {
			e.FieldStart("product")
			e.Str(resp.ProductID)
		}
		e.ObjEnd()
	})
}
