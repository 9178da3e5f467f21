package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBin writes an executable shell script standing in for pdftotext.
func fakeBin(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdftotext")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestExtractText(t *testing.T) {
	bin := fakeBin(t, `echo "STARTUP VOLTAGE: 150V"`)
	p := NewPdfToText(bin)

	text, err := p.ExtractText(context.Background(), "report.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "STARTUP VOLTAGE: 150V")
}

func TestExtractTextEmptyOutput(t *testing.T) {
	bin := fakeBin(t, `printf ""`)
	p := NewPdfToText(bin)

	_, err := p.ExtractText(context.Background(), "scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}

func TestExtractTextToolFailure(t *testing.T) {
	bin := fakeBin(t, `echo "Syntax Error: file is damaged" >&2; exit 1`)
	p := NewPdfToText(bin)

	_, err := p.ExtractText(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file is damaged")
}

func TestExtractTextMissingBinary(t *testing.T) {
	p := NewPdfToText(filepath.Join(t.TempDir(), "nonexistent"))

	_, err := p.ExtractText(context.Background(), "report.pdf")
	assert.Error(t, err)
}
