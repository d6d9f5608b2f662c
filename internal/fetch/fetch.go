package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
	"golang.org/x/time/rate"
)

var log = logger.Get("Fetcher")

const (
	partialSuffix = ".part"
	chunkSize     = 32 * 1024
)

type (
	Config struct {
		// MaxBytesPerSecond caps the download bandwidth of each fetch. Zero disables the cap.
		MaxBytesPerSecond int           `yaml:"max_bytes_per_second" env:"FETCH_MAX_BYTES_PER_SECOND" env-default:"0"`
		ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"FETCH_CONNECT_TIMEOUT" env-default:"30s"`
		UserAgent         string        `yaml:"user_agent" env:"FETCH_USER_AGENT" env-default:"Mozilla/5.0 (X11; Linux x86_64) Reel/1.0"`
	}

	// Fetcher downloads streams over HTTP in to a destination directory. A Fetcher
	// holds no per-request state and is safe for concurrent use.
	Fetcher struct {
		config Config
		client *http.Client
	}
)

func New(config Config) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.ConnectTimeout > 0 {
		transport.ResponseHeaderTimeout = config.ConnectTimeout
	}

	return NewWithClient(config, &http.Client{Transport: transport})
}

func NewWithClient(config Config, client *http.Client) *Fetcher {
	return &Fetcher{config: config, client: client}
}

// Fetch downloads the stream in to destDir using the streams provider-assigned
// filename. The bytes are written to a partial file which is renamed in to place
// only once the transfer is complete; on any failure the partial file is
// removed before returning a FetchError.
func (fetcher *Fetcher) Fetch(ctx context.Context, stream media.StreamDescriptor, destDir string) (*media.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, media.NewCancelledError(stream.URL, err)
	}

	finalPath := filepath.Join(destDir, stream.Filename())
	partPath := finalPath + partialSuffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return nil, &media.FetchError{Kind: media.Network, SourceURL: stream.URL, Permanent: true, Err: err}
	}
	if fetcher.config.UserAgent != "" {
		req.Header.Set("User-Agent", fetcher.config.UserAgent)
	}

	log.Emit(logger.DEBUG, "Fetching stream %s to %s\n", stream, finalPath)
	resp, err := fetcher.client.Do(req)
	if err != nil {
		return nil, fetcher.networkError(ctx, stream, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, &media.FetchError{Kind: media.Network, SourceURL: stream.URL, Permanent: !isTransientStatus(resp.StatusCode), Err: err}
	}

	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &media.FetchError{Kind: media.Disk, SourceURL: stream.URL, Err: err}
	}

	written, err := fetcher.copy(ctx, file, resp.Body, stream.URL)
	if err == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		err = &media.FetchError{
			Kind:      media.Network,
			SourceURL: stream.URL,
			Err:       fmt.Errorf("transfer truncated: received %d of %d bytes", written, resp.ContentLength),
		}
	}
	if err == nil {
		err = syncAndClose(file, stream.URL)
	} else {
		file.Close()
	}
	if err == nil {
		if renameErr := os.Rename(partPath, finalPath); renameErr != nil {
			err = &media.FetchError{Kind: media.Disk, SourceURL: stream.URL, Err: renameErr}
		}
	}

	if err != nil {
		if rmErr := os.Remove(partPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Emit(logger.ERROR, "Failed to remove partial file %s: %v\n", partPath, rmErr)
		}

		var fetchErr *media.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}

		return nil, fetcher.networkError(ctx, stream, err)
	}

	log.Emit(logger.SUCCESS, "Fetched stream %s (%d bytes)\n", stream.ID, written)
	return &media.FetchResult{LocalPath: finalPath, SizeBytes: written, SourceURL: stream.URL}, nil
}

// copy transfers the body to the file in chunks, waiting on the bandwidth
// limiter (if configured) before each write. Write failures are reported
// as FetchError{Disk}; read failures are returned raw.
func (fetcher *Fetcher) copy(ctx context.Context, dst io.Writer, src io.Reader, sourceURL string) (int64, error) {
	limiter, chunk := fetcher.newLimiter()
	buf := make([]byte, chunk)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}

			if _, err := dst.Write(buf[:n]); err != nil {
				return written, &media.FetchError{Kind: media.Disk, SourceURL: sourceURL, Err: err}
			}
			written += int64(n)
		}

		if readErr == io.EOF {
			return written, nil
		} else if readErr != nil {
			return written, readErr
		}
	}
}

func (fetcher *Fetcher) newLimiter() (*rate.Limiter, int) {
	bps := fetcher.config.MaxBytesPerSecond
	if bps <= 0 {
		return nil, chunkSize
	}

	chunk := chunkSize
	if bps < chunk {
		chunk = bps
	}

	return rate.NewLimiter(rate.Limit(bps), chunk), chunk
}

func (fetcher *Fetcher) networkError(ctx context.Context, stream media.StreamDescriptor, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return media.NewCancelledError(stream.URL, ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return media.NewCancelledError(stream.URL, err)
	}

	return &media.FetchError{Kind: media.Network, SourceURL: stream.URL, Err: err}
}

func syncAndClose(file *os.File, sourceURL string) error {
	if err := file.Sync(); err != nil {
		file.Close()
		return &media.FetchError{Kind: media.Disk, SourceURL: sourceURL, Err: err}
	}
	if err := file.Close(); err != nil {
		return &media.FetchError{Kind: media.Disk, SourceURL: sourceURL, Err: err}
	}

	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("unexpected HTTP status %s", resp.Status)
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
