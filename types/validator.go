package types

import (
	"bytes"
	"sort"
)

// Validator is a member of the fixed validator set for a given
// validator_set_id (epoch rotation is out of scope, spec.md §3).
type Validator struct {
	PublicKey PublicKey
	Stake     uint64
	Slashed   bool
}

// ValidatorSet is the sorted, fixed membership used for proposer selection
// and quorum math (C7, C8).
type ValidatorSet struct {
	ID         uint64
	Validators []Validator // sorted lexicographically by PublicKey
}

// NewValidatorSet sorts validators lexicographically by public key, the
// canonical order proposer selection relies on (spec.md §4.5).
func NewValidatorSet(id uint64, validators []Validator) *ValidatorSet {
	sorted := make([]Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].PublicKey[:], sorted[j].PublicKey[:]) < 0
	})
	return &ValidatorSet{ID: id, Validators: sorted}
}

// TotalStake returns the sum of stake over non-slashed validators, the
// denominator for every quorum computation (spec.md §4.5/§4.6).
func (vs *ValidatorSet) TotalStake() uint64 {
	var total uint64
	for _, v := range vs.Validators {
		if !v.Slashed {
			total += v.Stake
		}
	}
	return total
}

// HasQuorum reports whether stake is strictly greater than two-thirds of
// the set's total non-slashed stake.
func (vs *ValidatorSet) HasQuorum(stake uint64) bool {
	total := vs.TotalStake()
	return uint64(3)*stake > uint64(2)*total
}

// Proposer returns the round-robin proposer for (height, round): the
// validator at index (height+round) mod N in the sorted set.
func (vs *ValidatorSet) Proposer(height, round uint64) (Validator, bool) {
	n := len(vs.Validators)
	if n == 0 {
		return Validator{}, false
	}
	idx := (height + round) % uint64(n)
	return vs.Validators[idx], true
}

// ByPublicKey looks up a validator by key, ignoring slashed status.
func (vs *ValidatorSet) ByPublicKey(pub PublicKey) (Validator, bool) {
	for _, v := range vs.Validators {
		if v.PublicKey == pub {
			return v, true
		}
	}
	return Validator{}, false
}

// Slash zeroes a validator's stake and sets its slashed flag in place.
func (vs *ValidatorSet) Slash(pub PublicKey) bool {
	for i := range vs.Validators {
		if vs.Validators[i].PublicKey == pub {
			vs.Validators[i].Stake = 0
			vs.Validators[i].Slashed = true
			return true
		}
	}
	return false
}
