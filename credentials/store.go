package credentials

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Store owns the active credential snapshot. Verifications read the current
// snapshot through a single atomic load and never block; reloads build a new
// snapshot off to the side and publish it with Swap.
type Store struct {
	path    string
	current atomic.Pointer[Snapshot]
	// reloadMu serializes writers only. Readers never take it.
	reloadMu sync.Mutex
}

// NewStore loads the credential file at path and returns a Store serving it.
// An initial load failure is returned as is: a Store without credential data
// is never handed out.
func NewStore(path string) (*Store, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.Swap(snap)
	logLoaded(snap)
	return s, nil
}

// Path returns the credential file the Store reloads from.
func (s *Store) Path() string {
	return s.path
}

// Swap publishes snap as the current snapshot. Verifications that already
// hold the previous snapshot keep using it until they return.
func (s *Store) Swap(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
}

// Current returns the snapshot verifications currently observe.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Count returns the entry count of the current snapshot.
func (s *Store) Count() int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}
	return snap.Count()
}

// Verify looks digest up in the current snapshot. The match is exact: no case
// folding or trimming happens here. A miss says nothing about why.
func (s *Store) Verify(digest string) (string, bool) {
	snap := s.current.Load()
	if snap == nil {
		return "", false
	}
	return snap.Lookup(digest)
}

// Reload re-reads the credential file and swaps in the result. On failure
// the current snapshot stays in place and the error is returned.
func (s *Store) Reload() (int, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := Load(s.path)
	if err != nil {
		log.Errorf("Reload failed, keeping %d previously loaded credentials: %v", s.Count(), err)
		return 0, err
	}
	s.Swap(snap)
	logLoaded(snap)
	return snap.Count(), nil
}

func logLoaded(snap *Snapshot) {
	log.WithFields(log.Fields{
		"path":    snap.Path,
		"users":   snap.Users(),
		"digests": snap.Digests(),
	}).Infof("Loaded %d credentials", snap.Count())
}
