package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Holder operations act on behalf of the calling actor.

type investRequest struct {
	CashAmount decimal.Decimal `json:"cash_amount"`
}

func (h *Handler) invest(w http.ResponseWriter, r *http.Request) {
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
	var req investRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Investments.Invest(r.Context(), poolID, actorID, req.CashAmount)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type transferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
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
	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Transfers.Transfer(r.Context(), poolID, actorID, req.To, req.Amount)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) distributeTokens(w http.ResponseWriter, r *http.Request) {
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
	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Transfers.Distribute(r.Context(), actorID, poolID, req.To, req.Amount)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type stakeRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	DurationDays int             `json:"duration_days"`
}

func (h *Handler) stake(w http.ResponseWriter, r *http.Request) {
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
	var req stakeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Transfers.Stake(r.Context(), actorID, poolID, req.Amount, req.DurationDays)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) unstake(w http.ResponseWriter, r *http.Request) {
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
	stakeID, err := uuidParam(r, "stakeID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Transfers.Unstake(r.Context(), actorID, poolID, stakeID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) portfolioSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Portfolio.GetSummary(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) holdingDetail(w http.ResponseWriter, r *http.Request) {
	poolID, err := uuidParam(r, "poolID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	limit, err := limitParam(r, 50)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	detail, err := h.svc.Portfolio.GetHolding(r.Context(), chi.URLParam(r, "holderID"), poolID, limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
