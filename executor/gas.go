// Package executor runs transactions deterministically against a trie
// working copy: gas metering, EIP-1559 fees, and the native
// payload-signature/nonce/balance transaction path (spec.md §4.4), grounded
// on the reference gas meter and base-fee formula.
package executor

import "github.com/quorumchain/quorumchain/errs"

// Gas cost constants for the native path (spec.md §4.4).
const (
	BaseTxGas     = 21_000
	PerPayloadByte = 8
)

// GasMeter tracks consumption and refunds for one transaction.
type GasMeter struct {
	limit  uint64
	used   uint64
	refund uint64
}

// NewGasMeter creates a meter bounded by limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges amount, failing with OutOfGas if it would exceed the
// meter's limit.
func (g *GasMeter) Consume(amount uint64) error {
	if g.used+amount > g.limit {
		return errs.New(errs.KindOutOfGas, "gas meter: out of gas")
	}
	g.used += amount
	return nil
}

// Refund credits amount toward the EIP-3529 refund cap.
func (g *GasMeter) Refund(amount uint64) { g.refund += amount }

// Remaining returns the unused gas.
func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }

// Used returns gross gas consumed before refunds.
func (g *GasMeter) Used() uint64 { return g.used }

// Finalize returns gas used after applying the refund, capped at 50% of
// gas used (EIP-3529, spec.md §4.4).
func (g *GasMeter) Finalize() uint64 {
	maxRefund := g.used / 2
	actual := g.refund
	if actual > maxRefund {
		actual = maxRefund
	}
	return g.used - actual
}

// NextBaseFee applies the EIP-1559 adjustment: target utilisation 0.5,
// denominator 8, minimum increase of 1 above target, saturating toward
// zero below it (spec.md §4.4).
func NextBaseFee(parentGasUsed, parentGasLimit, parentBaseFee uint64) uint64 {
	if parentGasLimit == 0 {
		return parentBaseFee
	}

	delta := parentBaseFee / 8
	target := parentGasLimit / 2

	switch {
	case parentGasUsed > target:
		num := (parentGasUsed - target) * 2 * delta
		increase := num / parentGasLimit
		if increase < 1 {
			increase = 1
		}
		return parentBaseFee + increase
	case parentGasUsed < target:
		num := (target - parentGasUsed) * 2 * delta
		decrease := num / parentGasLimit
		if decrease > parentBaseFee {
			return 0
		}
		return parentBaseFee - decrease
	default:
		return parentBaseFee
	}
}
