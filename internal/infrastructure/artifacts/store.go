// Package artifacts keeps transient captcha screenshots and persisted invoice
// PDFs on a filesystem.
package artifacts

import (
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/spf13/afero"
)

type Store struct {
	fs          afero.Fs
	screenshots string
	invoices    string
	invoicesURL string
	publicURL   string
}

// NewStore creates the artifact directories under cfg.Dir. publicURL is the
// service's own base URL used to build file references.
func NewStore(fs afero.Fs, cfg config.ArtifactsConfig, publicURL string) (*Store, error) {
	s := &Store{
		fs:          fs,
		screenshots: filepath.Join(cfg.Dir, orDefault(cfg.ScreenshotsSubdir, "screenshots")),
		invoices:    filepath.Join(cfg.Dir, orDefault(cfg.InvoicesSubdir, "invoices")),
		invoicesURL: orDefault(cfg.InvoicesSubdir, "invoices"),
		publicURL:   strings.TrimRight(publicURL, "/"),
	}

	for _, dir := range []string{s.screenshots, s.invoices} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// SaveScreenshot writes img under a name unique to this call.
func (s *Store) SaveScreenshot(img []byte) (string, error) {
	name := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + uuid.NewString() + ".png"
	p := filepath.Join(s.screenshots, name)
	if err := afero.WriteFile(s.fs, p, img, 0o600); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return p, nil
}

// Remove deletes a transient artifact.
func (s *Store) Remove(p string) error {
	if err := s.fs.Remove(p); err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// SaveInvoice persists a receipt PDF as <invoice>.pdf and returns its public
// URL.
func (s *Store) SaveInvoice(invoiceID string, pdf []byte) (string, error) {
	name, err := invoiceFile(invoiceID)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, filepath.Join(s.invoices, name), pdf, 0o644); err != nil {
		return "", fmt.Errorf("write invoice: %w", err)
	}
	return s.FileURL(path.Join(s.invoicesURL, name)), nil
}

// RemoveInvoice deletes a persisted receipt. A missing file is not an error.
func (s *Store) RemoveInvoice(invoiceID string) error {
	name, err := invoiceFile(invoiceID)
	if err != nil {
		return err
	}
	p := filepath.Join(s.invoices, name)
	if ok, _ := afero.Exists(s.fs, p); !ok {
		return nil
	}
	return s.fs.Remove(p)
}

// FileURL builds the public reference of a file relative to the service root.
func (s *Store) FileURL(rel string) string {
	return s.publicURL + "/" + strings.TrimLeft(rel, "/")
}

// InvoicesPath is the URL prefix persisted receipts are served under.
func (s *Store) InvoicesPath() string {
	return "/" + s.invoicesURL
}

// InvoiceHandler serves persisted receipts. Mount it with the prefix
// stripped.
func (s *Store) InvoiceHandler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.fs).Dir(s.invoices))
}

func invoiceFile(invoiceID string) (string, error) {
	id := strings.TrimSpace(invoiceID)
	if id == "" || id != filepath.Base(id) || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid invoice id %q", invoiceID)
	}
	return id + ".pdf", nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
