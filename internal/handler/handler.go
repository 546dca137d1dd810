package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// Handler exposes the discount engine over HTTP. Routing follows the
// net/http method+pattern syntax; responses are encoded with jx and money
// amounts travel as JSON strings to avoid float precision loss.
type Handler struct {
	engine    *discount.Engine
	discounts discount.Store
	audits    discount.AuditLog
	lg        *zap.Logger
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(engine *discount.Engine, discounts discount.Store, audits discount.AuditLog, lg *zap.Logger) *Handler {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Handler{
		engine:    engine,
		discounts: discounts,
		audits:    audits,
		lg:        lg,
	}
}

// Routes registers all API routes on the given mux. Literal segments
// (preview, apply) take precedence over the {discountID} wildcard.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/discounts", h.listDiscounts)
	mux.HandleFunc("GET /api/users/{userID}/discounts", h.listEligible)
	mux.HandleFunc("POST /api/users/{userID}/discounts/preview", h.preview)
	mux.HandleFunc("POST /api/users/{userID}/discounts/apply", h.apply)
	mux.HandleFunc("GET /api/users/{userID}/discounts/{discountID}", h.checkEligibility)
	mux.HandleFunc("POST /api/users/{userID}/discounts/{discountID}", h.assign)
	mux.HandleFunc("DELETE /api/users/{userID}/discounts/{discountID}", h.revoke)
	mux.HandleFunc("GET /api/users/{userID}/audits", h.listAudits)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "invalid %s", name)
	}
	return id, nil
}

// actor resolves who performs the operation: an explicit request field wins,
// then the X-Actor header, then a generic fallback.
func actor(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := r.Header.Get("X-Actor"); v != "" {
		return v
	}
	return "api"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		h.lg.Debug("write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// mapError converts domain errors to HTTP error responses.
func (h *Handler) mapError(w http.ResponseWriter, err error) {
	var nf *discount.NotFoundError
	switch {
	case errors.As(err, &nf):
		h.writeError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, discount.ErrNotAssigned):
		h.writeError(w, http.StatusNotFound, "discount is not assigned to this user")
	case errors.Is(err, discount.ErrAlreadyAssigned):
		h.writeError(w, http.StatusConflict, "discount is already assigned to this user")
	case errors.Is(err, discount.ErrInactive),
		errors.Is(err, discount.ErrUsageLimitReached):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.lg.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
