package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

func (h *Handler) listAudits(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := h.audits.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("audits", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range entries {
						encodeAuditEntry(e, &entries[i])
					}
				})
			})
		})
	})
}

func encodeAuditEntry(e *jx.Encoder, entry *discount.AuditEntry) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(entry.ID.String()) })
		if entry.DiscountID != uuid.Nil {
			e.Field("discount_id", func(e *jx.Encoder) { e.Str(entry.DiscountID.String()) })
		}
		e.Field("action", func(e *jx.Encoder) { e.Str(string(entry.Action)) })
		if entry.OriginalAmount != nil {
			e.Field("original_amount", func(e *jx.Encoder) { e.Str(entry.OriginalAmount.String()) })
		}
		if entry.DiscountAmount != nil {
			e.Field("discount_amount", func(e *jx.Encoder) { e.Str(entry.DiscountAmount.String()) })
		}
		if entry.FinalAmount != nil {
			e.Field("final_amount", func(e *jx.Encoder) { e.Str(entry.FinalAmount.String()) })
		}
		if entry.DiscountType != "" {
			e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(entry.DiscountType)) })
		}
		if entry.DiscountValue != nil {
			e.Field("discount_value", func(e *jx.Encoder) { e.Str(entry.DiscountValue.String()) })
		}
		if len(entry.Metadata) > 0 {
			e.Field("metadata", func(e *jx.Encoder) {
				encodeStringMap(e, entry.Metadata)
			})
		}
		if entry.PerformedBy != "" {
			e.Field("performed_by", func(e *jx.Encoder) { e.Str(entry.PerformedBy) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(entry.CreatedAt.Format(time.RFC3339)) })
	})
}
