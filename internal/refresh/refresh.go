// Package refresh keeps the user rule document current. The hook stamps a
// marker file and spawns a detached update when the document goes stale;
// the update subcommand downloads, validates, and atomically replaces the
// document. A failed refresh never blocks or fails a command decision.
package refresh

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/apollo-com-ph/apollo-claude/internal/config"
	"github.com/apollo-com-ph/apollo-claude/internal/fileutil"
	"github.com/apollo-com-ph/apollo-claude/internal/logger"
	"github.com/apollo-com-ph/apollo-claude/internal/policy"
)

var log = logger.New("refresh")

const (
	// FetchTimeout bounds one download attempt end to end.
	FetchTimeout = 30 * time.Second

	// maxDocumentSize caps the downloaded document before and after
	// decompression. Real documents are a few kilobytes.
	maxDocumentSize = 4 << 20
)

// Refresher fetches the published rule document and swaps it in.
type Refresher struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *http.Client
}

// New creates a refresher for the given configuration.
func New(cfg *config.Config, secrets *config.Secrets) *Refresher {
	return &Refresher{
		cfg:     cfg,
		secrets: secrets,
		client:  &http.Client{Timeout: FetchTimeout},
	}
}

// Stale reports whether the document is due for refresh: the marker file
// is missing, unreadable, or older than the configured interval.
func (r *Refresher) Stale() bool {
	info, err := os.Stat(config.MarkerPath())
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) >= r.cfg.Update.Interval()
}

// LastAttempt returns the marker mtime, zero when no refresh has ever
// been recorded.
func (r *Refresher) LastAttempt() time.Time {
	info, err := os.Stat(config.MarkerPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Touch rewrites the marker file. Its mtime is the staleness clock; the
// decimal timestamp content is informational for humans poking at the
// state directory.
func (r *Refresher) Touch() error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return fileutil.SecureWriteFile(config.MarkerPath(), []byte(ts))
}

// Kick stamps the marker and spawns a detached update when the document
// is stale. It returns immediately and swallows every failure, because a
// refresh problem must never turn into a blocked command.
func (r *Refresher) Kick() {
	if !r.cfg.Update.Enabled || !r.Stale() {
		return
	}

	// Stamp before spawning so concurrent hook invocations do not each
	// start their own update.
	if err := r.Touch(); err != nil {
		log.Warn("Cannot stamp refresh marker: %v", err)
		return
	}

	pid, err := spawnDetached()
	if err != nil {
		log.Warn("Cannot start background update: %v", err)
		return
	}
	log.Debug("Background update started (pid %d)", pid)
}

// Run downloads the rule document, validates it, and atomically replaces
// the live file. The previous document stays in place on any failure.
func (r *Refresher) Run(ctx context.Context) error {
	url := r.cfg.Update.URL
	if url == "" {
		return fmt.Errorf("no update URL configured")
	}

	data, err := r.fetch(ctx, url)
	if err != nil {
		return err
	}

	doc, err := policy.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("downloaded document rejected: %w", err)
	}

	if err := fileutil.ReplaceFile(config.PatternsPath(), data); err != nil {
		return fmt.Errorf("failed to install document: %w", err)
	}

	if err := r.Touch(); err != nil {
		log.Warn("Cannot stamp refresh marker: %v", err)
	}

	log.Info("Rule document updated: %d deny, %d allow (version %d)",
		len(doc.Deny), len(doc.Allow), doc.Version)
	return nil
}

func (r *Refresher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid update URL: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	if r.secrets != nil && r.secrets.UpdateToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.secrets.UpdateToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s returned %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
	}

	data, err := decode(body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document exceeds %d bytes after decompression", maxDocumentSize)
	}
	return data, nil
}

// decode undoes the response compression. The magic bytes decide, not
// just the header: some CDNs serve pre-compressed blobs with the
// Content-Encoding stripped.
func decode(body []byte, encoding string) ([]byte, error) {
	switch {
	case isGzip(body) || encoding == "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("bad gzip body: %w", err)
		}
		defer gr.Close()
		data, err := io.ReadAll(io.LimitReader(gr, maxDocumentSize+1))
		if err != nil {
			return nil, fmt.Errorf("bad gzip body: %w", err)
		}
		return data, nil

	case isZstd(body) || encoding == "zstd":
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDocumentSize))
		if err != nil {
			return nil, fmt.Errorf("bad zstd body: %w", err)
		}
		defer decoder.Close()
		data, err := decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("bad zstd body: %w", err)
		}
		return data, nil

	default:
		return body, nil
	}
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func isZstd(b []byte) bool {
	return len(b) >= 4 && b[0] == 0x28 && b[1] == 0xb5 && b[2] == 0x2f && b[3] == 0xfd
}
