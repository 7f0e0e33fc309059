package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Pattern-set snapshots (canonical CBOR)
// ---------------------------------------------------------------------------

// setVersion tags the snapshot format.
const setVersion = 1

// patternSet is the wire form of an exported pattern collection.
type patternSet struct {
	Version  int       `cbor:"version"`
	Patterns []Pattern `cbor:"patterns"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ExportSet serializes every stored pattern, in creation order, to a
// canonical CBOR snapshot.
func (s *Store) ExportSet() ([]byte, error) {
	patterns, err := s.List()
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(&patternSet{Version: setVersion, Patterns: patterns})
	if err != nil {
		return nil, fmt.Errorf("encoding pattern set: %w", err)
	}
	return data, nil
}

// ImportSet loads a snapshot produced by ExportSet, re-creating each pattern
// through the normal create path so every record is validated again and gets
// a fresh id. Records whose name already exists, or that fail validation, are
// skipped with a log entry. Returns the number of patterns imported.
func (s *Store) ImportSet(data []byte) (int, error) {
	var set patternSet
	if err := cbor.Unmarshal(data, &set); err != nil {
		return 0, fmt.Errorf("decoding pattern set: %w", err)
	}
	if set.Version != setVersion {
		return 0, fmt.Errorf("unsupported pattern set version %d", set.Version)
	}

	existing, err := s.List()
	if err != nil {
		return 0, err
	}
	byName := make(map[string]bool, len(existing))
	for _, p := range existing {
		byName[p.Name] = true
	}

	imported := 0
	for _, p := range set.Patterns {
		if byName[p.Name] {
			s.log.Debugf("import: skipping existing pattern %q", p.Name)
			continue
		}
		if _, err := s.Create(p.Name, p.Script, p.Description, p.Examples); err != nil {
			s.log.Warningf("import: skipping pattern %q: %v", p.Name, err)
			continue
		}
		byName[p.Name] = true
		imported++
	}
	return imported, nil
}
