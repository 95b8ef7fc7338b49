package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/infra/logging"
	"membership-access/internal/infra/metrics"
)

type voteRequest struct {
	ProposalID   string `json:"proposal_id"`
	VoterAddress string `json:"voter_address"`
	VoteChoice   string `json:"vote_choice"`
}

type voteResponse struct {
	Success    bool        `json:"success"`
	Vote       *model.Vote `json:"vote"`
	VoteWeight int         `json:"vote_weight"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		metrics.IncVote("invalid")
		writeError(w, r, s.log, err)
		return
	}
	v, err := s.votes.Cast(r.Context(), req.ProposalID, req.VoterAddress, req.VoteChoice)
	if err != nil {
		_, code := statusFor(err)
		metrics.IncVote(code)
		writeError(w, r, s.log, err)
		return
	}
	metrics.IncVote("cast")
	writeJSON(w, http.StatusOK, voteResponse{Success: true, Vote: v, VoteWeight: v.Weight})
}

type removeVoteRequest struct {
	ProposalID   string `json:"proposal_id"`
	VoterAddress string `json:"voter_address"`
}

func (s *Server) handleRemoveVote(w http.ResponseWriter, r *http.Request) {
	var req removeVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.votes.Remove(r.Context(), req.ProposalID, req.VoterAddress); err != nil {
		_, code := statusFor(err)
		metrics.IncVote("remove_" + code)
		writeError(w, r, s.log, err)
		return
	}
	metrics.IncVote("removed")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type proposalListResponse struct {
	Proposals []*model.Proposal `json:"proposals"`
	Count     int               `json:"count"`
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	list, err := s.proposals.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if list == nil {
		list = []*model.Proposal{}
	}
	writeJSON(w, http.StatusOK, proposalListResponse{Proposals: list, Count: len(list)})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.proposals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type voteListResponse struct {
	Votes []*model.Vote `json:"votes"`
	Count int           `json:"count"`
}

func (s *Server) handleProposalVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := s.proposals.Votes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if votes == nil {
		votes = []*model.Vote{}
	}
	writeJSON(w, http.StatusOK, voteListResponse{Votes: votes, Count: len(votes)})
}

type createProposalRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	VotingDeadline time.Time `json:"voting_deadline"`
}

type proposalResponse struct {
	Success  bool            `json:"success"`
	Proposal *model.Proposal `json:"proposal"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	p, err := s.proposals.Create(r.Context(), req.Title, req.Description, req.VotingDeadline, logging.Operator(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposalResponse{Success: true, Proposal: p})
}

func (s *Server) handleCloseProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.proposals.Close(r.Context(), chi.URLParam(r, "id"))
	s.writeProposal(w, r, p, err)
}

func (s *Server) handleCancelProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.proposals.Cancel(r.Context(), chi.URLParam(r, "id"))
	s.writeProposal(w, r, p, err)
}

func (s *Server) writeProposal(w http.ResponseWriter, r *http.Request, p *model.Proposal, err error) {
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse{Success: true, Proposal: p})
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

type profileResponse struct {
	Success    bool           `json:"success"`
	Profile    *model.Profile `json:"profile"`
	VoteWeight int            `json:"vote_weight"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.tiers.GetTier(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: p, VoteWeight: model.VoteWeight(p.Tier)})
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	var req setTierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	p, err := s.tiers.SetTier(r.Context(), chi.URLParam(r, "address"), req.Tier)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: p, VoteWeight: model.VoteWeight(p.Tier)})
}

type mintRequest struct {
	Operator string `json:"operator"`
}

type mintResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleMintOperator issues a named operator JWT so admin actions can be attributed.
func (s *Server) handleMintOperator(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if req.Operator == "" || req.Operator == staticOperator || len(req.Operator) > 64 {
		writeError(w, r, s.log, domain.NewValidationError("operator"))
		return
	}
	tok, exp, err := s.minter.Mint(req.Operator)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	logging.With(r.Context(), s.log).Info().Str("minted_for", req.Operator).Msg("operator token minted")
	writeJSON(w, http.StatusCreated, mintResponse{Token: tok, ExpiresAt: exp})
}
