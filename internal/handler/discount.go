package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const maxBodyBytes = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	return data, nil
}

type assignRequest struct {
	AssignedBy string
	Notes      string
}

func decodeAssignRequest(data []byte) (assignRequest, error) {
	var req assignRequest
	if len(data) == 0 {
		return req, nil
	}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "assigned_by":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.AssignedBy = v
		case "notes":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Notes = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return req, errors.Wrap(err, "decode request")
	}
	return req, nil
}

type applyRequest struct {
	Amount      decimal.Decimal
	DiscountIDs []uuid.UUID

	hasAmount bool
}

func decodeApplyRequest(data []byte) (applyRequest, error) {
	var req applyRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "amount":
			var raw string
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				raw = v
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return err
				}
				raw = n.String()
			default:
				return errors.New("amount must be a number or a numeric string")
			}
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrap(err, "parse amount")
			}
			req.Amount = amount
			req.hasAmount = true
		case "discount_ids":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				id, err := uuid.Parse(v)
				if err != nil {
					return errors.Wrap(err, "parse discount id")
				}
				req.DiscountIDs = append(req.DiscountIDs, id)
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return req, errors.Wrap(err, "decode request")
	}
	if !req.hasAmount {
		return req, errors.New("amount is required")
	}
	return req, nil
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	discountID, err := pathUUID(r, "discountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeAssignRequest(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.engine.AssignDiscount(r.Context(), userID, discountID, actor(r, req.AssignedBy), discount.AssignOptions{
		Notes: req.Notes,
	})
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeAssignment(e, a)
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	discountID, err := pathUUID(r, "discountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	revoked, err := h.engine.RevokeDiscount(r.Context(), userID, discountID, actor(r, r.URL.Query().Get("revoked_by")))
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("revoked", func(e *jx.Encoder) { e.Bool(revoked) })
		})
	})
}

// listDiscounts returns the full catalog of currently redeemable discounts.
func (h *Handler) listDiscounts(w http.ResponseWriter, r *http.Request) {
	valid, err := h.discounts.ListValid(r.Context())
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("discounts", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range valid {
						encodeDiscount(e, &valid[i])
					}
				})
			})
		})
	})
}

func (h *Handler) listEligible(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eligible, err := h.engine.GetEligibleDiscounts(r.Context(), userID)
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("discounts", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range eligible {
						encodeDiscount(e, &eligible[i])
					}
				})
			})
		})
	})
}

func (h *Handler) checkEligibility(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	discountID, err := pathUUID(r, "discountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eligible, err := h.engine.IsEligibleFor(r.Context(), userID, discountID)
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("eligible", func(e *jx.Encoder) { e.Bool(eligible) })
		})
	})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	h.calculate(w, r, false)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	h.calculate(w, r, true)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request, commit bool) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeApplyRequest(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result *discount.ApplicationResult
	if commit {
		result, err = h.engine.ApplyDiscounts(r.Context(), userID, req.Amount, req.DiscountIDs...)
	} else {
		result, err = h.engine.CalculateDiscounts(r.Context(), userID, req.Amount, req.DiscountIDs...)
	}
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeResult(e, result)
	})
}

func encodeDiscount(e *jx.Encoder, d *discount.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(d.ID.String()) })
		e.Field("code", func(e *jx.Encoder) { e.Str(d.Code) })
		e.Field("name", func(e *jx.Encoder) { e.Str(d.Name) })
		if d.Description != "" {
			e.Field("description", func(e *jx.Encoder) { e.Str(d.Description) })
		}
		e.Field("type", func(e *jx.Encoder) { e.Str(string(d.Type)) })
		e.Field("value", func(e *jx.Encoder) { e.Str(d.Value.String()) })
		if d.StartsAt != nil {
			e.Field("starts_at", func(e *jx.Encoder) { e.Str(d.StartsAt.Format(time.RFC3339)) })
		}
		if d.ExpiresAt != nil {
			e.Field("expires_at", func(e *jx.Encoder) { e.Str(d.ExpiresAt.Format(time.RFC3339)) })
		}
		e.Field("max_usage_per_user", func(e *jx.Encoder) { e.Int(d.MaxUsagePerUser) })
		e.Field("priority", func(e *jx.Encoder) { e.Int(d.Priority) })
	})
}

func encodeAssignment(e *jx.Encoder, a *discount.Assignment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("user_id", func(e *jx.Encoder) { e.Str(a.UserID.String()) })
		e.Field("discount_id", func(e *jx.Encoder) { e.Str(a.DiscountID.String()) })
		e.Field("assigned_at", func(e *jx.Encoder) { e.Str(a.AssignedAt.Format(time.RFC3339)) })
		e.Field("assigned_by", func(e *jx.Encoder) { e.Str(a.AssignedBy) })
		e.Field("usage_count", func(e *jx.Encoder) { e.Int(a.UsageCount) })
		if a.Notes != "" {
			e.Field("notes", func(e *jx.Encoder) { e.Str(a.Notes) })
		}
	})
}

func encodeResult(e *jx.Encoder, res *discount.ApplicationResult) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("original_amount", func(e *jx.Encoder) { e.Str(res.OriginalAmount.String()) })
		e.Field("discount_amount", func(e *jx.Encoder) { e.Str(res.DiscountAmount.String()) })
		e.Field("final_amount", func(e *jx.Encoder) { e.Str(res.FinalAmount.String()) })
		e.Field("savings_percentage", func(e *jx.Encoder) { e.Str(res.Percentage().String()) })
		e.Field("applied_discounts", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range res.Applied {
					encodeDiscount(e, &res.Applied[i])
				}
			})
		})
		if len(res.Metadata) > 0 {
			e.Field("metadata", func(e *jx.Encoder) {
				encodeStringMap(e, res.Metadata)
			})
		}
	})
}

func encodeStringMap(e *jx.Encoder, m map[string]string) {
	e.Obj(func(e *jx.Encoder) {
		for k, v := range m {
			e.Field(k, func(e *jx.Encoder) { e.Str(v) })
		}
	})
}
