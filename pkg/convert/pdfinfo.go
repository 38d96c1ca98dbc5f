package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultPDFInfoBinary is the tool used to read PDF metadata.
const DefaultPDFInfoBinary = "pdfinfo"

// PDFInfo reads metadata from PDFs via the poppler pdfinfo tool. Page
// counts are informational; failures here never fail a print job.
type PDFInfo struct {
	binary string
}

// NewPDFInfo creates a PDFInfo reader. An empty binary selects
// DefaultPDFInfoBinary.
func NewPDFInfo(binary string) *PDFInfo {
	if binary == "" {
		binary = DefaultPDFInfoBinary
	}
	return &PDFInfo{binary: binary}
}

// PageCount returns the number of pages in the PDF at path.
func (p *PDFInfo) PageCount(ctx context.Context, path string) (int, error) {
	var stdout bytes.Buffer
	// #nosec G204 -- binary is from config, path is a spool-local file
	cmd := exec.CommandContext(ctx, p.binary, path)
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("running %s: %w", p.binary, err)
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("parsing page count %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("no Pages line in %s output", p.binary)
}
