package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

const DefaultMaxBytes int64 = 50 << 20

var (
	ErrLocalDisabled = errors.New("local sources are disabled")
	ErrOutsideRoot   = errors.New("local source outside allowed directory")
	ErrTooLarge      = errors.New("source exceeds size limit")
)

// Client downloads source recordings. HTTP(S) references are fetched with
// retries. file:// URLs and plain paths are copied only when a local root
// is configured and the path resolves inside it.
type Client struct {
	httpClient *http.Client
	maxElapsed time.Duration
	maxBytes   int64
	localRoot  string
	log        *logger.Logger
}

type Option func(*Client)

// WithLocalRoot allows local sources below dir.
func WithLocalRoot(dir string) Option {
	return func(c *Client) { c.localRoot = dir }
}

func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

func New(timeout time.Duration, log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.New()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: timeout,
		maxBytes:   DefaultMaxBytes,
		log:        log.Component("fetch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch writes the resource behind sourceRef to dest.
func (c *Client) Fetch(ctx context.Context, sourceRef, dest string) error {
	ref := strings.TrimSpace(sourceRef)
	if ref == "" {
		return fmt.Errorf("%w: empty source reference", types.ErrFetch)
	}
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		if err := c.download(ctx, ref, dest); err != nil {
			return fmt.Errorf("%w: %w", types.ErrFetch, err)
		}
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrFetch, err)
		}
		if err := c.copyLocal(u.Path, dest); err != nil {
			return fmt.Errorf("%w: %w", types.ErrFetch, err)
		}
	default:
		if err := c.copyLocal(ref, dest); err != nil {
			return fmt.Errorf("%w: %w", types.ErrFetch, err)
		}
	}
	return nil
}

func (c *Client) download(ctx context.Context, src, dest string) error {
	log := c.log.WithField("source", src)
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.WithError(err).Warn("download attempt failed")
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, string(b))
			return lastErr
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			lastErr = fmt.Errorf("download failed %d: %s", resp.StatusCode, string(b))
			return backoff.Permanent(lastErr)
		}
		if resp.ContentLength > c.maxBytes {
			lastErr = fmt.Errorf("%w: %d bytes announced, limit %d", ErrTooLarge, resp.ContentLength, c.maxBytes)
			return backoff.Permanent(lastErr)
		}
		n, err := c.writeLimited(resp.Body, dest)
		if errors.Is(err, ErrTooLarge) {
			lastErr = err
			return backoff.Permanent(err)
		}
		if err != nil {
			lastErr = err
			return err
		}
		log.WithField("bytes", n).Debug("download complete")
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr != nil && ctx.Err() != nil {
			return fmt.Errorf("%w (last attempt: %v)", err, lastErr)
		}
		return err
	}
	return nil
}

// copyLocal copies src when it resolves, symlinks included, inside the
// local root.
func (c *Client) copyLocal(src, dest string) error {
	if c.localRoot == "" {
		return ErrLocalDisabled
	}
	root, err := filepath.EvalSymlinks(c.localRoot)
	if err != nil {
		return fmt.Errorf("local root: %w", err)
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, src)
	}

	in, err := os.Open(resolved)
	if err != nil {
		return err
	}
	defer in.Close()
	if st, err := in.Stat(); err == nil && st.Size() > c.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, st.Size(), c.maxBytes)
	}
	_, err = c.writeLimited(in, dest)
	return err
}

// writeLimited copies at most maxBytes from r into dest and fails with
// ErrTooLarge when more is available.
func (c *Client) writeLimited(r io.Reader, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(r, c.maxBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n > c.maxBytes {
		return n, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.maxBytes)
	}
	return n, nil
}
