package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nftlend/core"
	"nftlend/gateway/middleware"
	"nftlend/native/loans"
)

// Ledger is the transactional surface the handlers run against.
type Ledger interface {
	Execute(fn func(*core.Tx) error) error
	View(fn func(*core.Tx) error) error
	Clock() core.Clock
	Pool() [20]byte
	ModuleAccount(v loans.Variant) [20]byte
}

// Rate limit groups.
const (
	RateLimitReads  = "reads"
	RateLimitWrites = "writes"
	RateLimitDev    = "dev"
)

// DevScope is the token scope required by the dev endpoints.
const DevScope = "dev"

type Config struct {
	Ledger        Ledger
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Idempotency   *middleware.IdempotencyCache
	CORS          middleware.CORSConfig
	// Dev mounts the mint and clock endpoints.
	Dev    bool
	Logger *slog.Logger
}

type handlers struct {
	ledger Ledger
	logger *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("routes: ledger required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{ledger: cfg.Ledger, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	reads := func(g chi.Router) {
		if cfg.RateLimiter != nil {
			g.Use(cfg.RateLimiter.Middleware(RateLimitReads))
		}
	}
	writes := func(g chi.Router, rateKey string, scopes ...string) {
		if cfg.Authenticator != nil {
			g.Use(cfg.Authenticator.Middleware(scopes...))
		}
		if cfg.RateLimiter != nil {
			g.Use(cfg.RateLimiter.Middleware(rateKey))
		}
		if cfg.Idempotency != nil {
			g.Use(cfg.Idempotency.Middleware)
		}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(g chi.Router) {
			reads(g)
			g.Get("/modules", h.modules)
			g.Get("/{variant}/requests/count", h.requestCount)
			g.Get("/{variant}/requests/{id}", h.request)
			g.Get("/{variant}/requests/{id}/debt", h.requestDebt)
			g.Get("/tokens/{asset}/balances/{holder}", h.tokenBalance)
			g.Get("/tokens/{asset}/allowances/{owner}/{spender}", h.tokenAllowance)
			g.Get("/nfts/{contract}/{id}/owner", h.nftOwner)
			g.Get("/markets/{asset}/rates", h.marketRates)
			g.Get("/markets/{asset}/accounts/{account}", h.marketAccount)
		})
		v1.Group(func(g chi.Router) {
			writes(g, RateLimitWrites)
			g.Post("/{variant}/requests", h.createRequest)
			g.Delete("/{variant}/requests/{id}", h.removeRequest)
			g.Post("/{variant}/requests/{id}/fulfill", h.fulfillRequest)
			g.Post("/{variant}/requests/{id}/repay", h.repay)
			g.Post("/{variant}/requests/{id}/liquidate", h.liquidate)
			g.Post("/tokens/{asset}/approve", h.approveToken)
			g.Post("/nfts/{contract}/{id}/approve", h.approveNFT)
			g.Post("/markets/{asset}/deposit", h.deposit)
			g.Post("/markets/{asset}/withdraw", h.withdraw)
			g.Post("/markets/{asset}/delegate", h.delegate)
		})
		if cfg.Dev {
			v1.Group(func(g chi.Router) {
				writes(g, RateLimitDev, DevScope)
				g.Post("/dev/mint/token", h.mintToken)
				g.Post("/dev/mint/nft", h.mintNFT)
				g.Post("/dev/clock/advance", h.advanceClock)
			})
		}
	})

	return r, nil
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func caller(r *http.Request) ([20]byte, error) {
	addr, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return [20]byte{}, errCallerRequired
	}
	return addr, nil
}
