package main

// WorkItem is one inbox photograph awaiting analysis and enhancement.
type WorkItem struct {
	Path   string
	Name   string
	Format string // normalized extension without the dot, e.g. "jpg"
	Data   []byte
}

// Critique is one provider's analysis of a photograph. Invalid critiques
// (unparseable or failed calls) are kept and tagged rather than dropped so
// the per-provider record survives into the entry metadata.
type Critique struct {
	Provider     string   `json:"llm"`
	Score        float64  `json:"score"`
	Improvements []string `json:"improvements"`
	Notes        string   `json:"notes"`
	Valid        bool     `json:"valid"`
	Error        string   `json:"error,omitempty"`
}

// Consensus is the merged judgment derived from all valid critiques for one
// photograph. Immutable once built.
type Consensus struct {
	Score        int      `json:"score"`
	Improvements []string `json:"improvements"`
	Notes        string   `json:"notes"`
	Critics      []string `json:"critics"`
}

// Edit tiers recorded in entry metadata.
const (
	TierPrimary      = "primary"       // remote edit succeeded
	TierFallback     = "fallback"      // local keyword-driven adjustments applied
	TierFallbackNoop = "fallback_noop" // fallback ran but no keyword matched; copy kept
)

// EntryMetadata is the durable record stored alongside each entry's images.
type EntryMetadata struct {
	EntryID        string     `json:"entry_id"`
	Timestamp      string     `json:"timestamp"`
	SourceFilename string     `json:"source_filename"`
	OriginalImage  string     `json:"original_image"`
	EditedImage    string     `json:"edited_image"`
	Score          int        `json:"score"`
	Improvements   []string   `json:"improvements"`
	Notes          string     `json:"notes"`
	Critics        []string   `json:"critics"`
	Critiques      []Critique `json:"critiques"`
	EditTier       string     `json:"edit_tier"`
}

// Entry is one committed record in the store.
type Entry struct {
	ID   string
	Dir  string
	Meta EntryMetadata
}

// ProcessingStatus represents the outcome of processing one work item.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusSkipped ProcessingStatus = "skipped"
	StatusError   ProcessingStatus = "error"
)

// ProcessingResult tracks the outcome of processing each work item.
type ProcessingResult struct {
	Item    string
	Status  ProcessingStatus
	EntryID string
	Error   error
}

// RunSummary aggregates the outcome of one pipeline run.
type RunSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Results   []ProcessingResult
}
