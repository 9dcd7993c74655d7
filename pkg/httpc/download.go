package httpc

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// StatusError is returned by Download for a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpc: %s: unexpected status %d", e.URL, e.Code)
}

// Download streams the response body into w, bypassing the cache and the
// body size limit. progress, if not nil, is called after every chunk with
// the bytes written so far and the advertised length, or -1 if unknown.
func (r *Request) Download(ctx context.Context, w io.Writer, progress func(done, total int64)) (int64, error) {
	if r.url == "" {
		return 0, ErrNoURL
	}

	resp, err := r.send(ctx)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{URL: r.url, Code: resp.StatusCode}
	}

	total := resp.ContentLength
	buf := make([]byte, 32<<10)
	var done int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return done, err
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return done, fmt.Errorf("httpc: download %s: %w", r.url, readErr)
		}
	}

	r.client.logger.Debug("HTTP download",
		zap.String("url", r.url),
		zap.Int64("bytes", done))
	return done, nil
}
