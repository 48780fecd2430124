// Package assets stores generated artifacts (QR PNGs, receipts) and
// hands back the public URL they are served from.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Uploader abstracts where generated files land. Issuance only cares
// about getting a URL back.
type Uploader interface {
	Upload(data []byte, path string) (string, error)
}

// LocalUploader writes under a directory that the HTTP server exposes
// at /assets.
type LocalUploader struct {
	baseDir string
	baseURL string
}

func NewLocalUploader(baseDir, baseURL string) *LocalUploader {
	return &LocalUploader{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload writes data to baseDir/path and returns the URL it will be
// served from. Intermediate directories are created as needed.
func (u *LocalUploader) Upload(data []byte, path string) (string, error) {
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid asset path: %s", path)
	}

	fullPath := filepath.Join(u.baseDir, cleaned)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}

	return fmt.Sprintf("%s/assets/%s", u.baseURL, filepath.ToSlash(cleaned)), nil
}
