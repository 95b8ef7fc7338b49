package model

import "strings"

// Tier is a membership rank. It decides channel access and governance weight.
type Tier string

const (
	TierNomad Tier = "NOMAD"
	TierPro   Tier = "PRO"
	TierRoyal Tier = "ROYAL"
)

// ParseTier accepts any casing and surrounding whitespace.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierNomad, TierPro, TierRoyal:
		return t, true
	}
	return "", false
}

func (t Tier) Valid() bool {
	_, ok := ParseTier(string(t))
	return ok
}

// VoteWeight maps a tier to its governance vote weight.
// Zero means the tier cannot vote.
func VoteWeight(t Tier) int {
	switch t {
	case TierRoyal:
		return 3
	case TierPro:
		return 1
	default:
		return 0
	}
}
