package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	entryTimestampLayout = "20060102-150405"
	metadataFilename     = "metadata.json"
	stagingPrefix        = ".staging-"
)

// EntryStore is the append-only record of processed photographs: one
// directory per entry holding the original, the edited result, and the
// metadata document. Entries are immutable after commit; corrections mean
// a new entry.
type EntryStore struct {
	root   string
	logger *zap.SugaredLogger

	// now is swapped out in tests for a fixed clock.
	now func() time.Time
}

func NewEntryStore(root string, logger *zap.SugaredLogger) *EntryStore {
	return &EntryStore{root: root, logger: logger, now: time.Now}
}

// NewEntryID returns a lexically sortable identity: a second-resolution
// timestamp plus a short random suffix. Same-second collisions are left to
// the suffix; with 4 random bytes that chance is negligible.
func (s *EntryStore) NewEntryID() (id, timestamp string) {
	suffix := make([]byte, 4)
	rand.Read(suffix)
	timestamp = s.now().UTC().Format(entryTimestampLayout)
	return timestamp + "-" + hex.EncodeToString(suffix), timestamp
}

// CreateEntry durably records one processed photograph. The write is atomic
// from the caller's perspective: all three artifacts land in a staging
// directory that is committed by rename, and any failure cleans the staging
// directory up so no partial entry is ever visible.
func (s *EntryStore) CreateEntry(item WorkItem, edited []byte, editedFormat string, consensus *Consensus, critiques []Critique, tier string) (entry *Entry, err error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, errors.Wrap(err, "creating store directory")
	}

	id, timestamp := s.NewEntryID()
	staging := filepath.Join(s.root, stagingPrefix+id)
	final := filepath.Join(s.root, id)

	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, errors.Wrap(err, "creating staging directory")
	}
	defer func() {
		if err != nil {
			os.RemoveAll(staging)
		}
	}()

	meta := EntryMetadata{
		EntryID:        id,
		Timestamp:      timestamp,
		SourceFilename: item.Name,
		OriginalImage:  "original." + item.Format,
		EditedImage:    "edited." + editedFormat,
		Score:          consensus.Score,
		Improvements:   consensus.Improvements,
		Notes:          consensus.Notes,
		Critics:        consensus.Critics,
		Critiques:      critiques,
		EditTier:       tier,
	}

	if err := os.WriteFile(filepath.Join(staging, meta.OriginalImage), item.Data, 0644); err != nil {
		return nil, errors.Wrap(err, "writing original image")
	}
	if err := os.WriteFile(filepath.Join(staging, meta.EditedImage), edited, 0644); err != nil {
		return nil, errors.Wrap(err, "writing edited image")
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling metadata")
	}
	if err := os.WriteFile(filepath.Join(staging, metadataFilename), metaJSON, 0644); err != nil {
		return nil, errors.Wrap(err, "writing metadata")
	}

	if err := os.Rename(staging, final); err != nil {
		return nil, errors.Wrap(err, "committing entry")
	}

	s.logger.Debugf("Created entry %s", id)
	return &Entry{ID: id, Dir: final, Meta: meta}, nil
}

// Entries loads every committed entry, newest first. Staging leftovers,
// hidden directories, and directories without readable metadata are
// skipped with a warning, never fatal.
func (s *EntryStore) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading store directory")
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}

		dir := filepath.Join(s.root, de.Name())
		metaJSON, err := os.ReadFile(filepath.Join(dir, metadataFilename))
		if err != nil {
			s.logger.Warnf("Skipping entry %s: %v", de.Name(), err)
			continue
		}

		var meta EntryMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			s.logger.Warnf("Skipping entry %s: bad metadata: %v", de.Name(), err)
			continue
		}

		entries = append(entries, Entry{ID: de.Name(), Dir: dir, Meta: meta})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	return entries, nil
}

// SourceIndex maps source filenames to the entries recording them, so
// discovery can skip photographs already processed on a previous run.
func (s *EntryStore) SourceIndex() (map[string]bool, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}

	index := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Meta.SourceFilename != "" {
			index[e.Meta.SourceFilename] = true
		}
	}
	return index, nil
}
