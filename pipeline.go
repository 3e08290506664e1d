package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// recognizedFormats are the intake image formats, keyed by normalized
// extension.
var recognizedFormats = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "heic": true, "heif": true,
}

// Pipeline orchestrates the whole run: discover inbox photographs, critique
// and enhance them with bounded parallelism and per-item failure isolation,
// record entries, then publish the site once every worker has settled.
type Pipeline struct {
	cfg       *Config
	critics   []*activeCritic
	enhancer  *Enhancer
	store     *EntryStore
	publisher *Publisher
	backoff   *Backoff
	logger    *zap.SugaredLogger

	dryRun      bool
	fullRebuild bool
}

// NewPipeline wires the pipeline from configuration. Zero configured
// providers is the one startup-fatal condition.
func NewPipeline(cfg *Config, logger *zap.SugaredLogger) (*Pipeline, error) {
	if !cfg.Providers.Any() {
		return nil, ErrNoProvidersConfigured
	}

	publisher, err := NewPublisher(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating publisher")
	}

	backoff := cfg.NewBackoffFromSettings()

	var remote RemoteEditor
	if cfg.Providers.GeminiKey != "" {
		remote = newGeminiEditor(cfg, logger)
	} else {
		logger.Warnf("No GEMINI_API_KEY: remote editing disabled, every edit will use the local fallback")
	}

	return &Pipeline{
		cfg:       cfg,
		critics:   buildCritics(cfg, logger),
		enhancer:  NewEnhancer(remote, backoff, logger),
		store:     NewEntryStore(cfg.Settings.StoreDirectory, logger),
		publisher: publisher,
		backoff:   backoff,
		logger:    logger,
	}, nil
}

// SetDryRun makes the run analyze only: no edits, no entries, no publish.
func (p *Pipeline) SetDryRun(dryRun bool) { p.dryRun = dryRun }

// SetFullRebuild makes the publish step regenerate every fragment.
func (p *Pipeline) SetFullRebuild(full bool) { p.fullRebuild = full }

// Run processes the inbox and publishes the site.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	items, skipped, err := p.discover()
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{Skipped: skipped}

	if len(items) == 0 {
		p.logger.Infof("No new images found in %s/", p.cfg.Settings.InboxDirectory)
		return summary, nil
	}

	p.logger.Infof("Processing %d image(s) with %d workers...", len(items), p.cfg.Settings.Workers)

	// The intake set is partitioned up front: no two workers ever share
	// an item, so no claiming lock is needed.
	partitions := partition(items, p.cfg.Settings.Workers)
	resultGroups := make([][]ProcessingResult, len(partitions))

	var wg sync.WaitGroup
	for w, part := range partitions {
		wg.Add(1)
		go func(w int, part []WorkItem) {
			defer wg.Done()
			for _, item := range part {
				resultGroups[w] = append(resultGroups[w], p.processItem(ctx, item))
			}
		}(w, part)
	}
	wg.Wait()

	for _, group := range resultGroups {
		for _, result := range group {
			summary.Results = append(summary.Results, result)
			switch result.Status {
			case StatusSuccess:
				summary.Succeeded++
			case StatusError:
				summary.Failed++
			}
		}
	}

	// Publish runs strictly after the pool joins: the aggregate fragment
	// reads the full entry set.
	if !p.dryRun {
		entries, err := p.store.Entries()
		if err != nil {
			return summary, errors.Wrap(err, "loading entries for publish")
		}
		mode := PublishIncremental
		if p.fullRebuild {
			mode = PublishFull
		}
		if _, err := p.publisher.Publish(entries, mode); err != nil {
			return summary, errors.Wrap(err, "publishing site")
		}
	}

	p.logSummary(summary)
	return summary, nil
}

// Rebuild republishes the site from the store without touching the inbox.
func (p *Pipeline) Rebuild(mode PublishMode) error {
	entries, err := p.store.Entries()
	if err != nil {
		return errors.Wrap(err, "loading entries")
	}
	_, err = p.publisher.Publish(entries, mode)
	return err
}

// discover enumerates the inbox for recognized, readable, not yet processed
// images. Unreadable or unrecognized files are reported and skipped, never
// fatal.
func (p *Pipeline) discover() ([]WorkItem, int, error) {
	inbox := p.cfg.Settings.InboxDirectory
	dirEntries, err := os.ReadDir(inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.Wrapf(err, "reading inbox %s", inbox)
	}

	processed, err := p.store.SourceIndex()
	if err != nil {
		return nil, 0, errors.Wrap(err, "indexing processed entries")
	}

	var items []WorkItem
	skipped := 0
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		format := normalizeFormat(filepath.Ext(name))
		if !recognizedFormats[format] {
			p.logger.Debugf("Skipping %s: unrecognized format", name)
			continue
		}

		if processed[name] {
			p.logger.Infof("Skipping %s: already processed", name)
			skipped++
			continue
		}

		data, err := os.ReadFile(filepath.Join(inbox, name))
		if err != nil {
			p.logger.Warnf("✗ Skipping %s: %v", name, err)
			continue
		}

		items = append(items, WorkItem{
			Path:   filepath.Join(inbox, name),
			Name:   name,
			Format: format,
			Data:   data,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, skipped, nil
}

// processItem runs one photograph through critique, consensus, enhancement,
// and storage. Every failure is contained to this item.
func (p *Pipeline) processItem(ctx context.Context, item WorkItem) ProcessingResult {
	p.logger.Infof("→ Processing %s", item.Name)

	critiques := collectCritiques(ctx, p.critics, p.backoff, item, p.logger)

	consensus, err := mergeCritiques(critiques, p.cfg.SimilarityThreshold())
	if err != nil {
		return ProcessingResult{Item: item.Name, Status: StatusError, Error: err}
	}

	p.logger.Infof("  Consensus for %s: %d/100, %d improvement(s) from %s",
		item.Name, consensus.Score, len(consensus.Improvements), strings.Join(consensus.Critics, ", "))

	if p.dryRun {
		for i, imp := range consensus.Improvements {
			p.logger.Infof("    %d. %s", i+1, imp)
		}
		p.logger.Infof("  Notes: %s", consensus.Notes)
		return ProcessingResult{Item: item.Name, Status: StatusSuccess}
	}

	edited, editedFormat, tier, err := p.enhancer.Enhance(ctx, item, consensus.Improvements)
	if err != nil {
		return ProcessingResult{Item: item.Name, Status: StatusError, Error: err}
	}

	entry, err := p.store.CreateEntry(item, edited, editedFormat, consensus, critiques, tier)
	if err != nil {
		return ProcessingResult{Item: item.Name, Status: StatusError, Error: errors.Wrap(err, "recording entry")}
	}

	// The inbox file goes away only after the entry is durably committed.
	if err := os.Remove(item.Path); err != nil {
		p.logger.Warnf("✗ Could not remove %s from inbox: %v", item.Name, err)
	}

	p.logger.Infof("✓ Processed %s → entry %s (%s)", item.Name, entry.ID, tier)
	return ProcessingResult{Item: item.Name, Status: StatusSuccess, EntryID: entry.ID}
}

// logSummary reports the run outcome; failures never silently disappear.
func (p *Pipeline) logSummary(summary *RunSummary) {
	p.logger.Infof("Run complete: %d succeeded, %d failed, %d skipped",
		summary.Succeeded, summary.Failed, summary.Skipped)
	for _, result := range summary.Results {
		if result.Status == StatusError {
			p.logger.Warnf("✗ %s: %s: %v", result.Item, errorKind(result.Error), result.Error)
		}
	}
}

// errorKind names the error taxonomy bucket for the run summary.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoValidCritiques):
		return "no_valid_critiques"
	case errors.Is(err, ErrUndecodableImage):
		return "undecodable_image"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case isFatalProvider(err):
		return "fatal_provider_error"
	default:
		return "error"
	}
}

// partition deals items round-robin into at most n groups.
func partition(items []WorkItem, n int) [][]WorkItem {
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	groups := make([][]WorkItem, n)
	for i, item := range items {
		groups[i%n] = append(groups[i%n], item)
	}
	return groups
}

// normalizeFormat lowercases an extension and drops the dot.
func normalizeFormat(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
