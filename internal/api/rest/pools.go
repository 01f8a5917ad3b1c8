package rest

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/pool"
	poolsvc "rwaledger/internal/services/pool"
)

func (h *Handler) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.svc.Pools.List(r.Context(), pool.PoolStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (h *Handler) createPool(w http.ResponseWriter, r *http.Request) {
	actorID, err := h.actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var in poolsvc.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := h.svc.Pools.Create(r.Context(), actorID, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := uuidParam(r, "poolID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := h.svc.Pools.Get(r.Context(), poolID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) poolStats(w http.ResponseWriter, r *http.Request) {
	poolID, err := uuidParam(r, "poolID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	stats, err := h.svc.Pools.GetStats(r.Context(), poolID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type lifecycleFunc func(r *http.Request, actor string, poolID uuid.UUID) (*pool.Pool, error)

// lifecycle adapts an admin pool transition to a handler
func (h *Handler) lifecycle(fn lifecycleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		p, err := fn(r, actorID, poolID)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (h *Handler) launchPool(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.Launch(r.Context(), a, id)
	})(w, r)
}

func (h *Handler) closePool(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.Close(r.Context(), a, id)
	})(w, r)
}

func (h *Handler) suspendPool(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.Suspend(r.Context(), a, id)
	})(w, r)
}

func (h *Handler) resumePool(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.Resume(r.Context(), a, id)
	})(w, r)
}

func (h *Handler) maturePool(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.Mature(r.Context(), a, id)
	})(w, r)
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.UpdatePrice(r.Context(), a, id, req.Price)
	})(w, r)
}

func (h *Handler) addAsset(w http.ResponseWriter, r *http.Request) {
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
	var in poolsvc.AssetInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	asset, err := h.svc.Pools.AddAsset(r.Context(), actorID, poolID, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (h *Handler) validateAsset(w http.ResponseWriter, r *http.Request) {
	assetID, err := uuidParam(r, "assetID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.lifecycle(func(r *http.Request, a string, id uuid.UUID) (*pool.Pool, error) {
		return h.svc.Pools.ValidateAsset(r.Context(), a, id, assetID)
	})(w, r)
}

func (h *Handler) poolJournal(w http.ResponseWriter, r *http.Request) {
	if h.svc.Journal == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: errorDetail{Code: "JOURNAL_DISABLED", Message: "event journal is not enabled"}})
		return
	}
	poolID, err := uuidParam(r, "poolID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	limit, err := limitParam(r, 100)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	events, err := h.svc.Journal.ListEvents(r.Context(), poolID, limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
