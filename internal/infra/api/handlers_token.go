package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
	"membership-access/internal/usecase"
)

type issueRequest struct {
	UserID               string   `json:"userId"`
	CreatorID            string   `json:"creatorId"`
	ChannelID            string   `json:"channelId"`
	SubscriptionDuration int      `json:"subscriptionDuration"`
	Tier                 string   `json:"tier"`
	PaymentAmount        *float64 `json:"paymentAmount"`
	ChannelName          string   `json:"channelName"`
	CreatorName          string   `json:"creatorName"`
}

type issueResponse struct {
	Success             bool               `json:"success"`
	AccessURL           string             `json:"accessUrl"`
	Token               string             `json:"token"`
	QRCode              string             `json:"qrCode"`
	SubscriptionDetails *model.AccessToken `json:"subscriptionDetails"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.tokens.Issue(r.Context(), usecase.IssueRequest{
		UserID:               req.UserID,
		CreatorID:            req.CreatorID,
		ChannelID:            req.ChannelID,
		SubscriptionDuration: req.SubscriptionDuration,
		Tier:                 req.Tier,
		PaymentAmount:        req.PaymentAmount,
		ChannelName:          req.ChannelName,
		CreatorName:          req.CreatorName,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	metrics.IncTokenIssued(string(res.Token.Tier))
	writeJSON(w, http.StatusOK, issueResponse{
		Success:             true,
		AccessURL:           res.AccessURL,
		Token:               res.Token.Token,
		QRCode:              res.QRCode,
		SubscriptionDetails: res.Token,
	})
}

type tokenListResponse struct {
	Tokens []*model.AccessToken `json:"tokens"`
	Count  int                  `json:"count"`
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := usecase.TokenFilter{
		UserID:    q.Get("userId"),
		ChannelID: q.Get("channelId"),
		CreatorID: q.Get("creatorId"),
	}
	if v := q.Get("status"); v != "" {
		st, ok := model.ParseTokenStatus(strings.ToLower(v))
		if !ok {
			writeError(w, r, s.log, domain.NewValidationError("status"))
			return
		}
		f.Status = st
	}
	var bad []string
	f.Limit, bad = intParam(q.Get("limit"), "limit", bad)
	f.Offset, bad = intParam(q.Get("offset"), "offset", bad)
	if len(bad) > 0 {
		writeError(w, r, s.log, domain.NewValidationError(bad...))
		return
	}

	list, err := s.tokens.List(r.Context(), f)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if list == nil {
		list = []*model.AccessToken{}
	}
	writeJSON(w, http.StatusOK, tokenListResponse{Tokens: list, Count: len(list)})
}

func intParam(v, name string, bad []string) (int, []string) {
	if v == "" {
		return 0, bad
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, append(bad, name)
	}
	return n, bad
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.tokens.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

type tokenPatchRequest struct {
	SubscriptionEndDate  *time.Time `json:"subscriptionEndDate"`
	SubscriptionDuration *int       `json:"subscriptionDuration"`
	Used                 *bool      `json:"used"`
	RedeemerID           *string    `json:"redeemerId"`
	RedeemerHandle       *string    `json:"redeemerHandle"`
}

type tokenResponse struct {
	Success bool               `json:"success"`
	Token   *model.AccessToken `json:"token"`
}

// handleUpdateToken rejects any field outside the admin-mutable set.
func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	token := chi.URLParam(r, "token")
	tok, err := s.tokens.Update(r.Context(), token, usecase.TokenPatch{
		SubscriptionEndDate:  req.SubscriptionEndDate,
		SubscriptionDuration: req.SubscriptionDuration,
		Used:                 req.Used,
		RedeemerID:           req.RedeemerID,
		RedeemerHandle:       req.RedeemerHandle,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	logging.With(r.Context(), s.log).Info().
		Str("token", logging.Redact(token, s.dev)).
		Msg("access token updated")
	writeJSON(w, http.StatusOK, tokenResponse{Success: true, Token: tok})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := s.tokens.Delete(r.Context(), token); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	logging.With(r.Context(), s.log).Info().
		Str("token", logging.Redact(token, s.dev)).
		Msg("access token deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.tokens.CountByStatus(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	metrics.SetTokenCounts(counts)
	out := map[string]int{}
	for _, st := range []model.TokenStatus{model.TokenStatusUnused, model.TokenStatusUsed, model.TokenStatusExpired} {
		out[string(st)] = counts[st]
	}
	writeJSON(w, http.StatusOK, out)
}
