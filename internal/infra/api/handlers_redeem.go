package api

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/infra/i18n"
	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
)

type redeemView struct {
	OK         bool
	Title      string
	Message    string
	Token      *model.AccessToken
	InviteLink string
	UsedAt     string
	UsedBy     string
	BotLink    string

	tr *i18n.Translator
}

func (v redeemView) Lang() string { return v.tr.Lang() }

func (v redeemView) Dir() string {
	if v.tr.RTL() {
		return "rtl"
	}
	return "ltr"
}

func (v redeemView) T(key string, args ...interface{}) string { return v.tr.T(key, args...) }

// handleRedeem consumes the token and renders the outcome as a page.
// Query parameters telegramId and telegramUsername are attached as redeemer claims.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	q := r.URL.Query()
	who := model.Identity{ID: q.Get("telegramId"), Handle: q.Get("telegramUsername")}
	tr := s.catalog.Pick(r.Header.Get("Accept-Language"))

	res, err := s.tokens.Redeem(r.Context(), token, who)
	if err == nil {
		metrics.IncTokenRedemption("success")
		s.renderRedeem(w, http.StatusOK, redeemView{
			OK:         true,
			Title:      tr.T("redeem.granted.title"),
			Message:    tr.T("redeem.granted.body"),
			Token:      res.Token,
			InviteLink: res.InviteLink,
			BotLink:    s.botLink,
			tr:         tr,
		})
		return
	}

	status, code := statusFor(err)
	metrics.IncTokenRedemption(code)
	view := redeemView{Title: tr.T("redeem.denied.title"), BotLink: s.botLink, tr: tr}
	switch code {
	case codeNotFound:
		view.Message = tr.T("redeem.not_found")
	case codeAlreadyUsed:
		view.Message = tr.T("redeem.already_used")
		var conflict *domain.RedemptionConflict
		if errors.As(err, &conflict) {
			if conflict.UsedAt != nil {
				view.UsedAt = conflict.UsedAt.UTC().Format(time.RFC1123)
			}
			view.UsedBy = maskRedeemer(conflict)
		}
	case codeExpired:
		view.Message = tr.T("redeem.expired")
	case codeValidation:
		view.Message = tr.T("redeem.malformed")
	default:
		view.Title = tr.T("redeem.error.title")
		view.Message = tr.T("redeem.error.body")
		logging.With(r.Context(), s.log).Error().Err(err).
			Str("token", logging.Redact(token, s.dev)).
			Msg("redeem failed")
	}
	s.renderRedeem(w, status, view)
}

// maskRedeemer shows enough of the original redeemer to recognize it
// without publishing the full handle or id.
func maskRedeemer(c *domain.RedemptionConflict) string {
	if c.RedeemerHandle != nil {
		if h := []rune(strings.TrimPrefix(*c.RedeemerHandle, "@")); len(h) > 0 {
			if len(h) > 2 {
				h = h[:2]
			}
			return "@" + string(h) + "***"
		}
	}
	if c.RedeemerID != nil && *c.RedeemerID != "" {
		id := *c.RedeemerID
		if len(id) <= 3 {
			return "***"
		}
		return "***" + id[len(id)-3:]
	}
	return ""
}

func (s *Server) renderRedeem(w http.ResponseWriter, status int, v redeemView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", v.Lang())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := redeemPage.Execute(w, v); err != nil {
		s.log.Error().Err(err).Msg("render redeem page")
	}
}

var redeemPage = template.Must(template.New("redeem").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02") },
}).Parse(`<!doctype html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{.Title}}</h2>
  <p>{{.Message}}</p>
  {{with .Token}}
  <p><strong>{{.ChannelName}}</strong>{{if .CreatorName}} {{$.T "redeem.by" .CreatorName}}{{end}}</p>
  <p class="small">{{$.T "redeem.valid_until" .Tier (date .SubscriptionEndDate)}}</p>
  {{end}}
  {{if .InviteLink}}<a class="btn" href="{{.InviteLink}}">{{.T "redeem.join"}}</a>{{end}}
  {{if .UsedAt}}<p class="small">{{.T "redeem.used_on" .UsedAt}}</p>{{end}}
  {{if .UsedBy}}<p class="small">{{.T "redeem.used_by" .UsedBy}}</p>{{end}}
  {{if .BotLink}}<p class="small"><a href="{{.BotLink}}">{{.T "redeem.support"}}</a></p>{{end}}
</div>
</body>
</html>`))
