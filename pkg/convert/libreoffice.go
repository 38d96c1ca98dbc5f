package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultBinary is the conversion tool invoked when none is configured.
	DefaultBinary = "libreoffice"

	// DefaultTimeout bounds a single conversion, matching the 30 second
	// cap the print workflow has always used.
	DefaultTimeout = 30 * time.Second
)

// supportedExtensions lists the input formats handed to the conversion
// tool. Anything else is rejected up front as unsupported.
var supportedExtensions = map[string]bool{
	".doc": true, ".docx": true, ".odt": true, ".rtf": true, ".txt": true,
	".xls": true, ".xlsx": true, ".ods": true, ".csv": true,
	".ppt": true, ".pptx": true, ".odp": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
	".html": true, ".htm": true, ".md": true, ".epub": true,
}

// LibreOffice implements Converter by shelling out to the office suite
// in headless mode.
type LibreOffice struct {
	binary  string
	outDir  string
	timeout time.Duration
}

// Config configures the LibreOffice converter.
type Config struct {
	// Binary is the conversion command. Defaults to DefaultBinary.
	Binary string

	// OutDir is where converted PDFs are written.
	OutDir string

	// Timeout bounds a single conversion. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewLibreOffice creates a LibreOffice converter writing into cfg.OutDir.
func NewLibreOffice(cfg Config) *LibreOffice {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LibreOffice{
		binary:  cfg.Binary,
		outDir:  cfg.OutDir,
		timeout: cfg.Timeout,
	}
}

// Convert produces a PDF for inputPath. PDF inputs pass through without
// invoking the tool. The subprocess is killed when the timeout elapses,
// and partial output is removed on every failure path.
func (l *LibreOffice) Convert(ctx context.Context, inputPath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(inputPath))
	if ext == ".pdf" {
		return inputPath, nil
	}
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	outPath := filepath.Join(l.outDir,
		strings.TrimSuffix(filepath.Base(inputPath), ext)+".pdf")

	var stderr bytes.Buffer
	// #nosec G204 -- binary is from config, inputPath is a spool-local file
	cmd := exec.CommandContext(ctx, l.binary,
		"--headless", "--convert-to", "pdf", inputPath, "--outdir", l.outDir)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outPath)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
		}
		return "", fmt.Errorf("%w: %s", ErrConversion, firstLine(stderr.String()))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("%w: no output produced", ErrConversion)
	}
	return outPath, nil
}

// firstLine trims subprocess noise down to the part worth reporting.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		s = "conversion tool exited non-zero"
	}
	return s
}

// Verify interface compliance.
var _ Converter = (*LibreOffice)(nil)
