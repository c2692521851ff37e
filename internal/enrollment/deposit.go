package enrollment

import "github.com/bosagora/agora/pkg/types"

// NoopDepositProvider is a PenaltyDepositProvider that always reports a
// fully-consumed deposit. It exists so Engine can be wired up on a node
// that has no separate penalty-escrow ledger yet: the capability seam named
// by the enrollment design is honored, but slashed validators are never
// held back from re-enrolling on deposit grounds alone.
type NoopDepositProvider struct{}

func (NoopDepositProvider) GetPenaltyDeposit(utxoKey types.Hash512) (uint64, error) {
	return 0, nil
}
