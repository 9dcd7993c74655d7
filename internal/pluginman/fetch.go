package pluginman

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
)

// fetch copies the artifact at rawURL into dst. rawURL may be a file://
// URL, a plain path or an http(s) URL.
func (m *Manager) fetch(ctx context.Context, rawURL, dst string, progress func(float64)) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	err = m.copyArtifact(ctx, rawURL, out, progress)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	progress(1)
	return nil
}

func (m *Manager) copyArtifact(ctx context.Context, rawURL string, w io.Writer, progress func(float64)) error {
	u, err := url.Parse(rawURL)
	if err != nil || len(u.Scheme) <= 1 {
		// A plain path; a one-letter scheme is a Windows drive.
		return copyFile(ctx, rawURL, w, progress)
	}

	switch u.Scheme {
	case "file":
		return copyFile(ctx, u.Path, w, progress)
	case "http", "https":
		_, err := m.http.NewRequest().URL(rawURL).Download(ctx, w, func(done, total int64) {
			if total > 0 {
				progress(float64(done) / float64(total))
			}
		})
		return err
	default:
		return fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}
}

func copyFile(ctx context.Context, path string, w io.Writer, progress func(float64)) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}

	pw := &progressWriter{w: w, total: st.Size(), progress: progress}
	_, err = io.Copy(pw, &ctxReader{ctx: ctx, r: in})
	return err
}

type progressWriter struct {
	w        io.Writer
	total    int64
	done     int64
	progress func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.total > 0 && n > 0 {
		p.progress(float64(p.done) / float64(p.total))
	}
	return n, err
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
