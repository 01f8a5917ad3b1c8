package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/access"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/services/dividend"
)

type createDistributionRequest struct {
	TotalAmount      decimal.Decimal `json:"total_amount"`
	RecordDate       time.Time       `json:"record_date"`
	DistributionDate time.Time       `json:"distribution_date"`
}

func (h *Handler) createDistribution(w http.ResponseWriter, r *http.Request) {
	actorID, err := h.actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	poolID, err := uuidParam(r, "poolID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req createDistributionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	d, err := h.svc.Dividends.Create(r.Context(), actorID, dividend.CreateInput{
		PoolID:           poolID,
		TotalAmount:      req.TotalAmount,
		RecordDate:       req.RecordDate,
		DistributionDate: req.DistributionDate,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) listDistributions(w http.ResponseWriter, r *http.Request) {
	poolID, err := uuidParam(r, "poolID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ds, err := h.svc.Dividends.ListByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) getDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "distributionID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	d, err := h.svc.Dividends.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) executeDistribution(w http.ResponseWriter, r *http.Request) {
	h.distributionAction(w, r, func(r *http.Request, a string, id uuid.UUID) (interface{}, error) {
		return h.svc.Dividends.Execute(r.Context(), a, id)
	})
}

func (h *Handler) retryDistribution(w http.ResponseWriter, r *http.Request) {
	h.distributionAction(w, r, func(r *http.Request, a string, id uuid.UUID) (interface{}, error) {
		return h.svc.Dividends.RetryExecution(r.Context(), a, id)
	})
}

func (h *Handler) cancelDistribution(w http.ResponseWriter, r *http.Request) {
	h.distributionAction(w, r, func(r *http.Request, a string, id uuid.UUID) (interface{}, error) {
		return h.svc.Dividends.Cancel(r.Context(), a, id)
	})
}

// claimDividend claims the calling holder's share
func (h *Handler) claimDividend(w http.ResponseWriter, r *http.Request) {
	h.distributionAction(w, r, func(r *http.Request, a string, id uuid.UUID) (interface{}, error) {
		return h.svc.Dividends.Claim(r.Context(), id, a)
	})
}

func (h *Handler) distributionAction(w http.ResponseWriter, r *http.Request, fn func(r *http.Request, actor string, id uuid.UUID) (interface{}, error)) {
	actorID, err := h.actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := uuidParam(r, "distributionID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := fn(r, actorID, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 100)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	legs, err := h.svc.Settlements.List(r.Context(), settlement.Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, legs)
}

func (h *Handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "settlementID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	leg, err := h.svc.Settlements.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, leg)
}

// retrySettlement is an operator action; the dispatcher itself has no notion of actors
func (h *Handler) retrySettlement(w http.ResponseWriter, r *http.Request) {
	actorID, err := h.actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := access.RequireElevated(r.Context(), h.svc.Auth, actorID); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := uuidParam(r, "settlementID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	outcome, err := h.svc.Settlements.Retry(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
