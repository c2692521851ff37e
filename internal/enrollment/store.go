package enrollment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bosagora/agora/internal/storage"
	"github.com/bosagora/agora/pkg/types"
)

var (
	prefixValidator      = []byte("v/")  // v/<utxo_key 64><enrolled_height 8 BE> -> ValidatorRecord JSON
	prefixValidatorByKey = []byte("vp/") // vp/<pubkey 33><utxo_key 64><enrolled_height 8 BE> -> empty (index)
	prefixPreimage       = []byte("pi/") // pi/<utxo_key 64> -> PreImageRecord JSON
)

func validatorKey(utxoKey types.Hash512, enrolledHeight uint64) []byte {
	key := make([]byte, len(prefixValidator)+types.Hash512Size+8)
	off := copy(key, prefixValidator)
	off += copy(key[off:], utxoKey[:])
	binary.BigEndian.PutUint64(key[off:], enrolledHeight)
	return key
}

func validatorByKeyIndexKey(pubKey types.PublicKey, utxoKey types.Hash512, enrolledHeight uint64) []byte {
	key := make([]byte, len(prefixValidatorByKey)+types.PublicKeySize+types.Hash512Size+8)
	off := copy(key, prefixValidatorByKey)
	off += copy(key[off:], pubKey[:])
	off += copy(key[off:], utxoKey[:])
	binary.BigEndian.PutUint64(key[off:], enrolledHeight)
	return key
}

func preimageKey(utxoKey types.Hash512) []byte {
	key := make([]byte, len(prefixPreimage)+types.Hash512Size)
	off := copy(key, prefixPreimage)
	copy(key[off:], utxoKey[:])
	return key
}

// errStopIteration is returned by ForEach callbacks that found what they
// were looking for and want to stop scanning early. It never escapes this
// package's exported functions.
var errStopIteration = errors.New("stop iteration")

// Store persists ValidatorRecords and PreImageRecords over a storage.DB,
// indexed for lookup by utxo_key and by public key. It has no notion of
// "active" or "slashed" - ValidatorSetEngine owns that logic and Store is
// just its durable, concurrent-read-safe backing.
type Store struct {
	db storage.DB
}

// NewStore creates an enrollment record store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the validator record enrolled at (utxoKey, enrolledHeight).
func (s *Store) Get(utxoKey types.Hash512, enrolledHeight uint64) (*ValidatorRecord, error) {
	data, err := s.db.Get(validatorKey(utxoKey, enrolledHeight))
	if err != nil {
		return nil, fmt.Errorf("enrollment store get: %w", err)
	}
	var r ValidatorRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("validator record unmarshal: %w", err)
	}
	return &r, nil
}

// PutAtomic persists a new ValidatorRecord together with its initial
// PreImageRecord in a single atomic commit, as the §4.4 Add algorithm
// requires: either both records become visible to readers or neither does.
// It falls back to sequential writes when the backing DB does not support
// batching (the in-memory test backend always does).
func (s *Store) PutAtomic(vr *ValidatorRecord, pr *PreImageRecord) error {
	vrData, err := json.Marshal(vr)
	if err != nil {
		return fmt.Errorf("validator record marshal: %w", err)
	}
	prData, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("preimage record marshal: %w", err)
	}

	batcher, ok := s.db.(storage.Batcher)
	if !ok {
		if err := s.db.Put(validatorKey(vr.UTXOKey, vr.EnrolledHeight), vrData); err != nil {
			return fmt.Errorf("validator record put: %w", err)
		}
		if err := s.db.Put(validatorByKeyIndexKey(vr.PublicKey, vr.UTXOKey, vr.EnrolledHeight), []byte{}); err != nil {
			return fmt.Errorf("validator index put: %w", err)
		}
		if err := s.db.Put(preimageKey(pr.UTXOKey), prData); err != nil {
			return fmt.Errorf("preimage record put: %w", err)
		}
		return nil
	}

	b := batcher.NewBatch()
	if err := b.Put(validatorKey(vr.UTXOKey, vr.EnrolledHeight), vrData); err != nil {
		return fmt.Errorf("batch put validator record: %w", err)
	}
	if err := b.Put(validatorByKeyIndexKey(vr.PublicKey, vr.UTXOKey, vr.EnrolledHeight), []byte{}); err != nil {
		return fmt.Errorf("batch put validator index: %w", err)
	}
	if err := b.Put(preimageKey(pr.UTXOKey), prData); err != nil {
		return fmt.Errorf("batch put preimage record: %w", err)
	}
	return b.Commit()
}

// PutValidator persists an update to an existing ValidatorRecord (e.g. a
// slash), without touching its preimage record.
func (s *Store) PutValidator(vr *ValidatorRecord) error {
	data, err := json.Marshal(vr)
	if err != nil {
		return fmt.Errorf("validator record marshal: %w", err)
	}
	if err := s.db.Put(validatorKey(vr.UTXOKey, vr.EnrolledHeight), data); err != nil {
		return fmt.Errorf("validator record put: %w", err)
	}
	return nil
}

// PutPreimage persists an updated PreImageRecord for a validator identity.
func (s *Store) PutPreimage(pr *PreImageRecord) error {
	data, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("preimage record marshal: %w", err)
	}
	if err := s.db.Put(preimageKey(pr.UTXOKey), data); err != nil {
		return fmt.Errorf("preimage record put: %w", err)
	}
	return nil
}

// GetPreimage returns the current preimage record for a validator identity.
func (s *Store) GetPreimage(utxoKey types.Hash512) (*PreImageRecord, error) {
	data, err := s.db.Get(preimageKey(utxoKey))
	if err != nil {
		return nil, fmt.Errorf("preimage store get: %w", err)
	}
	var pr PreImageRecord
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("preimage record unmarshal: %w", err)
	}
	return &pr, nil
}

// ForEachForUTXO iterates every ValidatorRecord ever enrolled under utxoKey,
// across every enrolled height - i.e. its full re-enrollment history. Keys
// are prefix-scanned on "v/" + utxoKey, relying on enrolled_height being
// appended after utxoKey in validatorKey.
func (s *Store) ForEachForUTXO(utxoKey types.Hash512, fn func(*ValidatorRecord) error) error {
	prefix := make([]byte, len(prefixValidator)+types.Hash512Size)
	off := copy(prefix, prefixValidator)
	copy(prefix[off:], utxoKey[:])

	return s.db.ForEach(prefix, func(key, value []byte) error {
		var r ValidatorRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("validator record unmarshal: %w", err)
		}
		return fn(&r)
	})
}

// ForEachValidator iterates every ValidatorRecord in the store, across all
// identities, heights, and slash states. Callers filter with
// ValidatorRecord.ActiveAt themselves - the validator set is never large
// enough to warrant a secondary height index.
func (s *Store) ForEachValidator(fn func(*ValidatorRecord) error) error {
	return s.db.ForEach(prefixValidator, func(key, value []byte) error {
		var r ValidatorRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("validator record unmarshal: %w", err)
		}
		return fn(&r)
	})
}

// ForEachForPublicKey iterates every ValidatorRecord ever enrolled under
// pubKey, across every utxo_key and enrolled height, via the "vp/" index -
// used to enforce that a public key backs at most one active enrollment at
// a time, regardless of which utxo_key it is enrolled under.
func (s *Store) ForEachForPublicKey(pubKey types.PublicKey, fn func(*ValidatorRecord) error) error {
	prefix := make([]byte, len(prefixValidatorByKey)+types.PublicKeySize)
	off := copy(prefix, prefixValidatorByKey)
	copy(prefix[off:], pubKey[:])

	wantLen := len(prefixValidatorByKey) + types.PublicKeySize + types.Hash512Size + 8
	return s.db.ForEach(prefix, func(key, value []byte) error {
		if len(key) != wantLen {
			return fmt.Errorf("malformed validator index key %x", key)
		}
		off := len(prefixValidatorByKey) + types.PublicKeySize
		var utxoKey types.Hash512
		copy(utxoKey[:], key[off:off+types.Hash512Size])
		enrolledHeight := binary.BigEndian.Uint64(key[off+types.Hash512Size:])

		r, err := s.Get(utxoKey, enrolledHeight)
		if err != nil {
			return fmt.Errorf("resolve indexed validator record: %w", err)
		}
		return fn(r)
	})
}

// HasPublicKey reports whether any ValidatorRecord, active or not, was ever
// enrolled under the given public key.
func (s *Store) HasPublicKey(pubKey types.PublicKey) (bool, error) {
	prefix := make([]byte, len(prefixValidatorByKey)+types.PublicKeySize)
	off := copy(prefix, prefixValidatorByKey)
	copy(prefix[off:], pubKey[:])

	found := false
	err := s.db.ForEach(prefix, func(key, value []byte) error {
		found = true
		return errStopIteration
	})
	if err != nil && err != errStopIteration {
		return false, fmt.Errorf("has public key scan: %w", err)
	}
	return found, nil
}

// RemoveAll deletes every validator and preimage record the store holds.
// It is used only by test harnesses and chain-reorg rollback paths that
// need to reset enrollment state wholesale.
func (s *Store) RemoveAll() error {
	var keys [][]byte
	collect := func(key, value []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return nil
	}
	if err := s.db.ForEach(prefixValidator, collect); err != nil {
		return fmt.Errorf("remove all: scan validators: %w", err)
	}
	if err := s.db.ForEach(prefixValidatorByKey, collect); err != nil {
		return fmt.Errorf("remove all: scan validator index: %w", err)
	}
	if err := s.db.ForEach(prefixPreimage, collect); err != nil {
		return fmt.Errorf("remove all: scan preimages: %w", err)
	}
	for _, k := range keys {
		if err := s.db.Delete(k); err != nil {
			return fmt.Errorf("remove all: delete %x: %w", k, err)
		}
	}
	return nil
}
