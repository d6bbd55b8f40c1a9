package pdf

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"paperbase/internal/models"
)

// Extraction is the text layer pulled out of a PDF.
type Extraction struct {
	PageCount int
	PageTexts []string
	Metadata  map[string]string
}

// minCharsPerPage is the text density below which a document's text layer
// is considered unusable and OCR regeneration kicks in.
const minCharsPerPage = 64

// Extractor reads PDF files. Safe for concurrent use; each call opens its
// own document handle.
type Extractor struct{}

// NewExtractor creates a PDF extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Validate checks structural integrity. Corrupt or encrypted files fail here
// before any processing starts.
func (e *Extractor) Validate(path string) error {
	if err := api.ValidateFile(path, nil); err != nil {
		return models.NewError(models.KindInvalidInput, "pdf.validate", err, "PDF failed structural validation")
	}
	return nil
}

// PageCount returns the number of pages without a full text extraction.
func (e *Extractor) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, models.NewError(models.KindInvalidInput, "pdf.page_count", err, "cannot read page count")
	}
	return n, nil
}

// Extract pulls page text and document metadata from every page.
func (e *Extractor) Extract(path string) (*Extraction, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, models.NewError(models.KindInvalidInput, "pdf.open", err, "cannot open PDF")
	}
	defer doc.Close()

	out := &Extraction{
		PageCount: doc.NumPage(),
		Metadata:  doc.Metadata(),
	}
	out.PageTexts = make([]string, 0, out.PageCount)
	for i := 0; i < out.PageCount; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, models.Errorf(models.KindInternal, "pdf.text", "extract page %d: %v", i+1, err)
		}
		out.PageTexts = append(out.PageTexts, text)
	}
	return out, nil
}

// RenderFirstPage writes the first page as a PNG, used as the stored
// thumbnail. Returns the written path.
func (e *Extractor) RenderFirstPage(path, outDir, docID string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", models.NewError(models.KindInvalidInput, "pdf.open", err, "cannot open PDF")
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return "", models.NewError(models.KindInternal, "pdf.render", err, "cannot render first page")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	outPath := filepath.Join(outDir, docID+"_p1.png")
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return outPath, nil
}

// NeedsOCR reports whether the extracted text layer is too thin to use.
func NeedsOCR(ex *Extraction) bool {
	if ex.PageCount == 0 {
		return true
	}
	var chars int
	for _, text := range ex.PageTexts {
		chars += len(strings.TrimSpace(text))
	}
	return chars/ex.PageCount < minCharsPerPage
}

// MetadataString flattens PDF metadata into a stable key=value form, sorted
// by key, used as input to the content fingerprint.
func MetadataString(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(meta[k])
		b.WriteByte('\n')
	}
	return b.String()
}
