package filesec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

var pdfMagic = []byte("%PDF-")

// suspiciousMarkers are PDF features that have no business in a scholarly
// paper and commonly carry payloads.
var suspiciousMarkers = [][]byte{
	[]byte("/JavaScript"),
	[]byte("/JS"),
	[]byte("/Launch"),
	[]byte("/OpenAction"),
	[]byte("/AA"),
	[]byte("/EmbeddedFile"),
}

// Validator checks uploads before they enter the pipeline. Rejected files
// can optionally be moved to quarantine instead of deleted.
type Validator struct {
	cfg           config.UploadConfig
	quarantineDir string
}

// NewValidator creates an upload validator.
func NewValidator(cfg config.UploadConfig, quarantineDir string) *Validator {
	return &Validator{cfg: cfg, quarantineDir: quarantineDir}
}

// Validate checks size bounds, the PDF magic header, the detected MIME type,
// and scans for suspicious markers. On failure the file is quarantined (when
// enabled) and a classified error is returned.
func (v *Validator) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return models.NewError(models.KindInternal, "filesec", err, "stat upload")
	}

	if info.Size() < v.cfg.MinBytes {
		return v.reject(path, "file too small to be a valid PDF")
	}
	if info.Size() > v.cfg.MaxUploadBytes() {
		return v.reject(path, fmt.Sprintf("file exceeds %d MB limit", v.cfg.MaxMB))
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return v.reject(path, fmt.Sprintf("extension %q not allowed", ext))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.NewError(models.KindInternal, "filesec", err, "read upload")
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		return v.reject(path, "missing PDF magic header")
	}

	mtype := mimetype.Detect(data)
	if !mtype.Is("application/pdf") {
		return v.reject(path, fmt.Sprintf("detected type %s, not application/pdf", mtype.String()))
	}

	for _, marker := range suspiciousMarkers {
		if bytes.Contains(data, marker) {
			return v.reject(path, fmt.Sprintf("suspicious PDF feature %s", marker))
		}
	}
	return nil
}

func (v *Validator) reject(path, reason string) error {
	if v.cfg.QuarantineEnabled && v.quarantineDir != "" {
		if err := v.quarantine(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("quarantine failed")
		}
	}
	return models.Errorf(models.KindInvalidInput, "filesec", "%s", reason)
}

func (v *Validator) quarantine(path string) error {
	if err := os.MkdirAll(v.quarantineDir, 0o700); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}
	dest := filepath.Join(v.quarantineDir,
		fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}
	log.Warn().Str("from", path).Str("to", dest).Msg("upload quarantined")
	return nil
}
