//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen -generate types,client -package apiclient -o ../../../pkg/apiclient/client.gen.go ../../../api/openapi.yaml

package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"membership-access/internal/config"
	"membership-access/internal/infra/i18n"
	"membership-access/internal/usecase"
)

// Deps carries everything the HTTP layer needs. Limiter and Health are optional.
type Deps struct {
	Tokens    usecase.TokenUseCase
	Votes     usecase.VoteUseCase
	Proposals usecase.ProposalUseCase
	Tiers     usecase.TierUseCase

	Auth    *AdminAuth
	Minter  *AuthManager
	Limiter Limiter
	Health  func(ctx context.Context) error
	Catalog *i18n.Catalog

	// BotUsername, when set, adds a t.me support link to the redemption page.
	BotUsername string

	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	Metrics   bool
	Dev       bool
}

// Server exposes token issuance and redemption, the admin API and governance voting.
type Server struct {
	tokens    usecase.TokenUseCase
	votes     usecase.VoteUseCase
	proposals usecase.ProposalUseCase
	tiers     usecase.TierUseCase

	auth    *AdminAuth
	minter  *AuthManager
	limiter Limiter
	health  func(ctx context.Context) error
	catalog *i18n.Catalog
	botLink string

	timeout   time.Duration
	rateLimit config.RateLimitConfig
	metrics   bool
	dev       bool
	log       *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if d.Auth == nil {
		d.Auth = NewAdminAuth("", d.Minter, logger)
	}
	if d.Catalog == nil {
		d.Catalog = i18n.MustDefault()
	}
	timeout := d.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{
		tokens:    d.Tokens,
		votes:     d.Votes,
		proposals: d.Proposals,
		tiers:     d.Tiers,
		auth:      d.Auth,
		minter:    d.Minter,
		limiter:   d.Limiter,
		health:    d.Health,
		catalog:   d.Catalog,
		timeout:   timeout,
		rateLimit: d.RateLimit,
		metrics:   d.Metrics,
		dev:       d.Dev,
		botLink:   botLink(d.BotUsername),
		log:       logger,
	}
}

// Routes builds the chi router with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		TraceID(s.log),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.timeout),
	)

	r.Get("/health", s.handleHealth)
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Post("/api/telegram/access-tokens", s.handleIssue)

	r.Method(http.MethodGet, "/access/{token}", Chain(http.HandlerFunc(s.handleRedeem),
		RateLimit(s.limiter, "redeem", s.rateLimit.RedeemPerMinute, s.log)))

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/access-tokens", s.auth.Require("tokens.list", s.handleListTokens))
		r.Post("/access-tokens", s.auth.Require("tokens.issue", s.handleIssue))
		r.Get("/access-tokens/{token}", s.auth.Require("tokens.get", s.handleGetToken))
		r.Patch("/access-tokens/{token}", s.auth.Require("tokens.update", s.handleUpdateToken))
		r.Delete("/access-tokens/{token}", s.auth.Require("tokens.delete", s.handleDeleteToken))
		r.Get("/stats", s.auth.Require("tokens.stats", s.handleStats))

		r.Get("/profiles/{address}", s.auth.Require("profiles.get", s.handleGetProfile))
		r.Put("/profiles/{address}/tier", s.auth.Require("profiles.set_tier", s.handleSetTier))

		r.Post("/proposals", s.auth.Require("proposals.create", s.handleCreateProposal))
		r.Post("/proposals/{id}/close", s.auth.Require("proposals.close", s.handleCloseProposal))
		r.Post("/proposals/{id}/cancel", s.auth.Require("proposals.cancel", s.handleCancelProposal))

		if s.minter != nil {
			r.Post("/operator-tokens", s.auth.RequireStatic("operators.mint", s.handleMintOperator))
		}
	})

	r.Route("/api/governance", func(r chi.Router) {
		voteLimit := RateLimit(s.limiter, "vote", s.rateLimit.VotePerMinute, s.log)
		r.Method(http.MethodPost, "/votes", Chain(http.HandlerFunc(s.handleCastVote), voteLimit))
		r.Method(http.MethodDelete, "/votes", Chain(http.HandlerFunc(s.handleRemoveVote), voteLimit))
		r.Get("/proposals", s.handleListProposals)
		r.Get("/proposals/{id}", s.handleGetProposal)
		r.Get("/proposals/{id}/votes", s.handleProposalVotes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found", Code: codeNotFound})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func botLink(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return ""
	}
	return "https://t.me/" + url.PathEscape(username)
}
