// Package checkpoint persists the narrow slice of sync-core state spec.md
// §6/§9 calls out as needing to survive a restart: the rank-sync's next
// time, the global max_period, and the set of registered link names.
// Outbound SyncQueues are never persisted -- they are only non-empty
// between two adjacent barriers, so a checkpoint may only be taken with
// every queue already drained.
package checkpoint

import (
	"github.com/ipfs/go-datastore"
	badgerds "github.com/ipfs/go-ds-badger"
	"github.com/pkg/errors"
	codec "github.com/ugorji/go/codec"

	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
)

var checkpointKey = datastore.NewKey("/vortex-sync/checkpoint")

var mh codec.MsgpackHandle

func init() {
	mh.Canonical = true
}

// Record is the entire persisted state of the sync core.
type Record struct {
	NextRankSyncTime uint64
	MaxPeriod        uint64
	LinkNames        []string
}

// Store persists and restores Records through an arbitrary go-datastore
// backend, so a real deployment can point it at github.com/ipfs/go-ds-badger
// while tests use an in-memory datastore.NewMapDatastore.
type Store struct {
	ds datastore.Datastore
}

// NewStore wraps an already-open datastore. The caller owns the datastore's
// lifecycle (including Close).
func NewStore(ds datastore.Datastore) *Store {
	return &Store{ds: ds}
}

// NewBadgerStore opens (creating if necessary) a go-ds-badger datastore at
// path and wraps it in a Store, the on-disk backend a real deployment uses
// in place of the in-memory datastore tests reach for.
func NewBadgerStore(path string) (*Store, func() error, error) {
	opts := badgerds.DefaultOptions
	ds, err := badgerds.NewDatastore(path, &opts)
	if err != nil {
		return nil, nil, errors.Wrap(syncerr.ErrConfiguration, "checkpoint: open badger datastore: "+err.Error())
	}
	return &Store{ds: ds}, ds.Close, nil
}

// Save serializes rec and writes it under the checkpoint key. Callers must
// ensure every outbound SyncQueue is empty before calling Save.
func (s *Store) Save(rec Record) error {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &mh)
	if err := enc.Encode(rec); err != nil {
		return errors.Wrap(err, "checkpoint: encode")
	}
	if err := s.ds.Put(checkpointKey, buf); err != nil {
		return errors.Wrap(syncerr.ErrConfiguration, "checkpoint: put: "+err.Error())
	}
	return nil
}

// Load reads back the last saved Record. It returns datastore.ErrNotFound
// (wrapped) if no checkpoint has ever been saved.
func (s *Store) Load() (Record, error) {
	var rec Record
	buf, err := s.ds.Get(checkpointKey)
	if err != nil {
		return rec, errors.Wrap(err, "checkpoint: get")
	}
	dec := codec.NewDecoderBytes(buf, &mh)
	if err := dec.Decode(&rec); err != nil {
		return rec, errors.Wrap(err, "checkpoint: decode")
	}
	return rec, nil
}
