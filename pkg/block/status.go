package block

import "github.com/chainledger/core/pkg/model"

// Status is a block's election verdict, per §4.4.
type Status string

const (
	StatusValid     Status = "VALID"
	StatusInvalid   Status = "INVALID"
	StatusUndecided Status = "UNDECIDED"
)

// ElectionStatus tallies block.Votes against len(block.Block.Voters) per
// §4.4: ceil(n/2) invalid votes condemns the block; otherwise more than
// floor(n/2) valid votes passes it; otherwise it remains undecided. Only
// signature-valid votes count — an unsigned or forged vote neither helps
// nor hurts. The ceiling/floor asymmetry is deliberate: an even split
// resolves to INVALID.
func ElectionStatus(b model.Block) Status {
	n := len(b.Block.Voters)
	var nValid, nInvalid int
	for _, v := range b.Votes {
		if !v.VerifySignature() {
			continue
		}
		if v.Vote.IsBlockValid {
			nValid++
		} else {
			nInvalid++
		}
	}

	if nInvalid >= ceilHalf(n) {
		return StatusInvalid
	}
	if nValid > n/2 {
		return StatusValid
	}
	return StatusUndecided
}

func ceilHalf(n int) int {
	return (n + 1) / 2
}
