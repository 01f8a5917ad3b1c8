package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"rwaledger/internal/domain/access"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/services/dividend"
	"rwaledger/internal/services/investment"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/internal/services/portfolio"
	"rwaledger/internal/services/settlement"
	"rwaledger/internal/services/transfer"
	"rwaledger/pkg/auth"
	"rwaledger/pkg/logger"
)

// JournalReader reads the event journal for a pool
type JournalReader interface {
	ListEvents(ctx context.Context, poolID uuid.UUID, limit int) ([]ledger.Event, error)
}

// Services bundles the ledger operations exposed over HTTP
type Services struct {
	Pools       *poolsvc.Service
	Investments *investment.Service
	Transfers   *transfer.Service
	Dividends   *dividend.Service
	Portfolio   *portfolio.Service
	Settlements *settlement.Dispatcher
	Auth        access.Authorizer
	// Journal is nil when the ClickHouse journal is disabled
	Journal JournalReader
}

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Handler serves the ledger REST API
type Handler struct {
	svc    Services
	tokens TokenVerifier
	log    *logger.Logger
}

// Option configures a Handler
type Option func(h *Handler)

// WithTokenAuth requires a bearer token on every actor-scoped request
func WithTokenAuth(v TokenVerifier) Option {
	return func(h *Handler) { h.tokens = v }
}

// NewHandler creates the REST handler set
func NewHandler(svc Services, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{svc: svc, log: log.Component("rest_api")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the v1 API on a fresh chi router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.identify)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/pools", func(r chi.Router) {
		r.Get("/", h.listPools)
		r.Post("/", h.createPool)
		r.Route("/{poolID}", func(r chi.Router) {
			r.Get("/", h.getPool)
			r.Get("/stats", h.poolStats)
			r.Post("/launch", h.launchPool)
			r.Post("/close", h.closePool)
			r.Post("/suspend", h.suspendPool)
			r.Post("/resume", h.resumePool)
			r.Post("/mature", h.maturePool)
			r.Put("/price", h.updatePrice)
			r.Post("/assets", h.addAsset)
			r.Post("/assets/{assetID}/validate", h.validateAsset)

			r.Post("/investments", h.invest)
			r.Post("/transfers", h.transfer)
			r.Post("/mints", h.distributeTokens)
			r.Post("/stakes", h.stake)
			r.Post("/stakes/{stakeID}/unstake", h.unstake)

			r.Get("/distributions", h.listDistributions)
			r.Post("/distributions", h.createDistribution)
			r.Get("/journal", h.poolJournal)
		})
	})

	r.Route("/distributions/{distributionID}", func(r chi.Router) {
		r.Get("/", h.getDistribution)
		r.Post("/execute", h.executeDistribution)
		r.Post("/retry", h.retryDistribution)
		r.Post("/cancel", h.cancelDistribution)
		r.Post("/claim", h.claimDividend)
	})

	r.Route("/holders/{holderID}", func(r chi.Router) {
		r.Get("/portfolio", h.portfolioSummary)
		r.Get("/holdings/{poolID}", h.holdingDetail)
	})

	r.Route("/settlements", func(r chi.Router) {
		r.Get("/", h.listSettlements)
		r.Get("/{settlementID}", h.getSettlement)
		r.Post("/{settlementID}/retry", h.retrySettlement)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debugw("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
