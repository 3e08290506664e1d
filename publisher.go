package main

import (
	"bytes"
	"html/template"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// PublishMode selects how much of the site is regenerated.
type PublishMode int

const (
	// PublishIncremental regenerates only fragments whose output is
	// missing, plus the aggregate index.
	PublishIncremental PublishMode = iota
	// PublishFull regenerates every fragment unconditionally. Used for
	// recovery after template changes.
	PublishFull
)

// indexFragmentKey is the literal key of the aggregate fragment.
const indexFragmentKey = "index"

// Fragment is one rendered output unit with its explicit dependency set, so
// staleness is a function of the dependencies rather than a side effect of
// directory scanning.
type Fragment struct {
	Key       string
	Path      string
	DependsOn []string
}

// comparisonHeight and comparisonGutter fix the geometry of the
// side-by-side comparison render.
const (
	comparisonHeight = 800
	comparisonGutter = 10
)

// Publisher rebuilds the published gallery from the entry store. Rendering
// is deterministic: the same entry and template version always produce the
// same bytes, which is what lets incremental mode leave untouched fragment
// files byte-identical.
type Publisher struct {
	siteDir   string
	indexTmpl *template.Template
	entryTmpl *template.Template
	css       string
	logger    *zap.SugaredLogger
}

func NewPublisher(cfg *Config, logger *zap.SugaredLogger) (*Publisher, error) {
	indexTmpl, err := template.New("index").Parse(cfg.GetIndexTemplate())
	if err != nil {
		return nil, errors.Wrap(err, "parsing index template")
	}
	entryTmpl, err := template.New("entry").Parse(cfg.GetEntryTemplate())
	if err != nil {
		return nil, errors.Wrap(err, "parsing entry template")
	}

	return &Publisher{
		siteDir:   cfg.Settings.SiteDirectory,
		indexTmpl: indexTmpl,
		entryTmpl: entryTmpl,
		css:       cfg.GetStylesheet(),
		logger:    logger,
	}, nil
}

// entryView is the template-facing projection of one entry.
type entryView struct {
	Meta          EntryMetadata
	OriginalURL   string
	EditedURL     string
	ComparisonURL string
	HasComparison bool
}

type indexView struct {
	Entries []entryView
	Total   int
}

// Publish materializes the site for the given entries and returns the
// fragments that were (re)rendered.
func (p *Publisher) Publish(entries []Entry, mode PublishMode) ([]Fragment, error) {
	imagesDir := filepath.Join(p.siteDir, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating site directory")
	}

	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		view, err := p.stageAssets(entry, imagesDir, mode)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	var rendered []Fragment

	for i, entry := range entries {
		frag := Fragment{
			Key:       entry.ID,
			Path:      filepath.Join(p.siteDir, entry.ID+".html"),
			DependsOn: []string{entry.ID},
		}
		if !p.stale(frag, mode) {
			continue
		}
		if err := p.render(p.entryTmpl, frag.Path, views[i]); err != nil {
			return nil, err
		}
		rendered = append(rendered, frag)
	}

	indexFrag := Fragment{
		Key:       indexFragmentKey,
		Path:      filepath.Join(p.siteDir, "index.html"),
		DependsOn: entryIDs(entries),
	}
	if err := p.render(p.indexTmpl, indexFrag.Path, indexView{Entries: views, Total: len(views)}); err != nil {
		return nil, err
	}
	rendered = append(rendered, indexFrag)

	if err := os.WriteFile(filepath.Join(p.siteDir, "style.css"), []byte(p.css), 0644); err != nil {
		return nil, errors.Wrap(err, "writing stylesheet")
	}

	p.logger.Infof("✓ Site published: %d entries, %d fragments rendered", len(entries), len(rendered))
	return rendered, nil
}

// stale reports whether a fragment must be regenerated. The aggregate
// index depends on every entry and is always stale; per-entry fragments
// are immutable once rendered, so in incremental mode only a missing
// output file makes them stale.
func (p *Publisher) stale(frag Fragment, mode PublishMode) bool {
	if mode == PublishFull || frag.Key == indexFragmentKey {
		return true
	}
	_, err := os.Stat(frag.Path)
	return os.IsNotExist(err)
}

func (p *Publisher) render(tmpl *template.Template, path string, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return errors.Wrapf(err, "rendering %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "writing %s", filepath.Base(path))
	}
	return nil
}

// stageAssets copies the entry's images into the site and renders the
// side-by-side comparison, honoring the incremental contract: existing
// assets are left untouched unless the mode is FULL.
func (p *Publisher) stageAssets(entry Entry, imagesDir string, mode PublishMode) (entryView, error) {
	originalName := entry.ID + "-original" + filepath.Ext(entry.Meta.OriginalImage)
	editedName := entry.ID + "-edited" + filepath.Ext(entry.Meta.EditedImage)
	comparisonName := entry.ID + "-comparison.jpg"

	copies := [][2]string{
		{filepath.Join(entry.Dir, entry.Meta.OriginalImage), filepath.Join(imagesDir, originalName)},
		{filepath.Join(entry.Dir, entry.Meta.EditedImage), filepath.Join(imagesDir, editedName)},
	}
	for _, pair := range copies {
		if mode == PublishIncremental && fileExists(pair[1]) {
			continue
		}
		if err := copyFile(pair[0], pair[1]); err != nil {
			return entryView{}, errors.Wrapf(err, "staging assets for %s", entry.ID)
		}
	}

	comparisonPath := filepath.Join(imagesDir, comparisonName)
	hasComparison := fileExists(comparisonPath)
	if mode == PublishFull || !hasComparison {
		err := renderComparison(
			filepath.Join(entry.Dir, entry.Meta.OriginalImage),
			filepath.Join(entry.Dir, entry.Meta.EditedImage),
			comparisonPath,
		)
		if err != nil {
			// HEIC originals have no local decoder; the entry page
			// simply omits the comparison.
			p.logger.Debugf("No comparison for %s: %v", entry.ID, err)
			hasComparison = false
		} else {
			hasComparison = true
		}
	}

	return entryView{
		Meta:          entry.Meta,
		OriginalURL:   "images/" + originalName,
		EditedURL:     "images/" + editedName,
		ComparisonURL: "images/" + comparisonName,
		HasComparison: hasComparison,
	}, nil
}

// renderComparison writes a side-by-side original/edited JPEG, both resized
// to a fixed height with a small gutter between them.
func renderComparison(originalPath, editedPath, outputPath string) error {
	original, err := loadImage(originalPath)
	if err != nil {
		return errors.Wrap(err, "decoding original")
	}
	edited, err := loadImage(editedPath)
	if err != nil {
		return errors.Wrap(err, "decoding edited")
	}

	left := imaging.Resize(original, 0, comparisonHeight, imaging.Lanczos)
	right := imaging.Resize(edited, 0, comparisonHeight, imaging.Lanczos)

	width := left.Bounds().Dx() + comparisonGutter + right.Bounds().Dx()
	canvas := imaging.New(width, comparisonHeight, color.White)
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(left.Bounds().Dx()+comparisonGutter, 0))

	encoded, err := encodeJPEG(canvas, 90)
	if err != nil {
		return errors.Wrap(err, "encoding comparison")
	}
	return os.WriteFile(outputPath, encoded, 0644)
}

func loadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeImage(data)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
