package model

import (
	"strings"
	"time"
)

type ProposalStatus string

const (
	ProposalStatusActive    ProposalStatus = "active"
	ProposalStatusClosed    ProposalStatus = "closed"
	ProposalStatusCancelled ProposalStatus = "cancelled"
)

func ParseProposalStatus(s string) (ProposalStatus, bool) {
	switch st := ProposalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ProposalStatusActive, ProposalStatusClosed, ProposalStatusCancelled:
		return st, true
	}
	return "", false
}

// Proposal is a governance question members vote on until VotingDeadline.
// VotesFor and VotesAgainst hold weighted sums.
type Proposal struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         ProposalStatus `json:"status"`
	VotingDeadline time.Time      `json:"voting_deadline"`
	VotesFor       int            `json:"votes_for"`
	VotesAgainst   int            `json:"votes_against"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AcceptsVotes reports whether the proposal is open at the given instant.
func (p *Proposal) AcceptsVotes(now time.Time) bool {
	return p.Status == ProposalStatusActive && !now.After(p.VotingDeadline)
}

type VoteChoice string

const (
	VoteFor     VoteChoice = "for"
	VoteAgainst VoteChoice = "against"
)

func ParseVoteChoice(s string) (VoteChoice, bool) {
	switch c := VoteChoice(strings.ToLower(strings.TrimSpace(s))); c {
	case VoteFor, VoteAgainst:
		return c, true
	}
	return "", false
}

// Vote is one row per (proposal, voter). Weight is frozen when the vote is cast.
type Vote struct {
	ID           string     `json:"id"`
	ProposalID   string     `json:"proposal_id"`
	VoterAddress string     `json:"voter_address"`
	Choice       VoteChoice `json:"vote_choice"`
	Weight       int        `json:"vote_weight"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Profile is the tier record for a wallet address.
type Profile struct {
	WalletAddress string    `json:"wallet_address"`
	Tier          Tier      `json:"tier"`
	UpdatedAt     time.Time `json:"updated_at"`
}
