// Package document loads contract documents by reference and extracts their text.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
)

// ErrTooLarge is returned when a document exceeds the configured size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// Fetcher retrieves raw document bytes. Supported schemes are file://, which
// is confined to a root directory, and http(s)://.
type Fetcher struct {
	root     string
	maxBytes int64
	client   *http.Client
}

// NewFetcher creates a Fetcher from cfg.
func NewFetcher(cfg config.DocumentConfig) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		root:     cfg.Root,
		maxBytes: cfg.MaxBytes,
		client:   &http.Client{Timeout: timeout},
	}
}

// Fetch returns the bytes behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fault.Invalid("fetch document", fmt.Errorf("parse reference: %w", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.fetchFile(u)
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	default:
		return nil, fault.Invalid("fetch document", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

func (f *Fetcher) fetchFile(u *url.URL) ([]byte, error) {
	path, err := f.resolve(u)
	if err != nil {
		return nil, fault.Invalid("fetch document", err)
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fault.Invalid("fetch document", fmt.Errorf("document not found: %s", u.Path))
	}
	if err != nil {
		return nil, fault.Unavailable("fetch document", err)
	}
	defer file.Close()

	return f.readCapped(file)
}

// resolve maps a file URL onto the root directory. Relative references are
// joined to the root; absolute ones must already lie inside it.
func (f *Fetcher) resolve(u *url.URL) (string, error) {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return "", fmt.Errorf("resolve document root: %w", err)
	}

	name := u.Path
	if u.Host != "" && u.Host != "localhost" {
		name = u.Host + u.Path
	}
	if name == "" {
		return "", errors.New("empty file reference")
	}

	path := filepath.FromSlash(name)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("reference %q escapes document root", name)
	}
	return path, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fault.Invalid("fetch document", fmt.Errorf("create request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fault.Unavailable("fetch document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fault.Unavailable("fetch document", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return f.readCapped(resp.Body)
}

func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fault.Unavailable("read document", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fault.Unavailable("read document", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fault.Invalid("read document", fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes))
	}
	return data, nil
}
