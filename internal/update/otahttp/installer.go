package otahttp

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Installer stores an uploaded image. progress is called with the running
// byte count.
type Installer interface {
	Install(ctx context.Context, r io.Reader, size int64, progress func(done int64)) error
}

// FileInstaller writes the image to Path, staging it next to the target and
// renaming it into place once complete.
type FileInstaller struct {
	Path string
}

// Install implements Installer.
func (f FileInstaller) Install(ctx context.Context, r io.Reader, size int64, progress func(done int64)) error {
	staging := f.Path + ".partial"
	out, err := os.OpenFile(staging, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}
	defer os.Remove(staging) //nolint:errcheck // gone after rename on success

	n, err := io.Copy(out, &progressReader{ctx: ctx, r: r, fn: progress})
	if err != nil {
		out.Close()
		return fmt.Errorf("writing image: %w", err)
	}
	if size >= 0 && n != size {
		out.Close()
		return fmt.Errorf("writing image: got %d bytes, want %d", n, size)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("syncing image: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing image: %w", err)
	}
	if err := os.Rename(staging, f.Path); err != nil {
		return fmt.Errorf("installing image: %w", err)
	}
	return nil
}

type progressReader struct {
	ctx  context.Context
	r    io.Reader
	fn   func(int64)
	done int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		if p.fn != nil {
			p.fn(p.done)
		}
	}
	return n, err
}
