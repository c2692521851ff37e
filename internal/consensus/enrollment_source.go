package consensus

import (
	"bytes"
	"fmt"

	"github.com/bosagora/agora/internal/enrollment"
)

// ValidatorSetSource supplies the active validator set at a height. It is
// satisfied by *enrollment.Engine; PoA depends on this narrow interface,
// not the concrete engine, so tests can substitute a fake source without
// standing up real storage.
type ValidatorSetSource interface {
	GetValidators(height uint64) ([]enrollment.ValidatorInfo, error)
}

// SyncValidators reconciles p.Validators against the active set reported
// by source for height, on top of the always-trusted genesis validators.
// Enrollment-sourced validators below minStake or no longer active are
// dropped; newly active ones are added. Genesis validators are never
// removed by this call, so a chain can adopt enrollment-based validator
// rotation without losing its original trusted signers.
func (p *PoA) SyncValidators(height uint64, source ValidatorSetSource, minStake uint64) error {
	active, err := source.GetValidators(height)
	if err != nil {
		return fmt.Errorf("sync validators: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := append([][]byte(nil), p.genesisValidators...)
	for _, v := range active {
		if v.Stake < minStake {
			continue
		}
		pub := append([]byte(nil), v.Address[:]...)
		if !containsPubKey(next, pub) {
			next = append(next, pub)
		}
	}
	sortValidators(next)
	p.Validators = next
	return nil
}

func containsPubKey(set [][]byte, pubKey []byte) bool {
	for _, v := range set {
		if bytes.Equal(v, pubKey) {
			return true
		}
	}
	return false
}
