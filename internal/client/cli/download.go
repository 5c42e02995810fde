package cli

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/filekeeper/internal/filex"
	"github.com/dmitrijs2005/filekeeper/internal/netx"
)

// target resolves where a download of ref lands inside the output directory.
func (a *App) target(ref string, args []string) (string, error) {
	dir, err := filex.EnsureDir(a.config.OutputDir)
	if err != nil {
		return "", err
	}

	name := path.Base(strings.TrimSpace(ref))
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive a file name from %q, pass one", ref)
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}

func (a *App) download(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("download")
	}
	dst, err := a.target(args[0], args[1:])
	if err != nil {
		return err
	}

	var size int64
	var version int64
	err = filex.WriteAtomic(dst, func(w io.Writer) error {
		info, err := a.api.Download(ctx, args[0], w)
		if err != nil {
			return err
		}
		size, version = info.Size, info.Version
		return nil
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", args[0], err)
	}

	fmt.Fprintf(a.out, "downloaded version %d of %s to %s (%d bytes)\n", version, args[0], dst, size)
	return nil
}

// fetch downloads through a presigned link, straight from the blob store.
func (a *App) fetch(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("fetch")
	}
	dst, err := a.target(args[0], args[1:])
	if err != nil {
		return err
	}

	url, err := a.api.Link(ctx, args[0], 0)
	if err != nil {
		return fmt.Errorf("link %s: %w", args[0], err)
	}

	var n int64
	err = filex.WriteAtomic(dst, func(w io.Writer) error {
		n, err = netx.Fetch(ctx, a.api.HTTPClient(), url, w)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", args[0], err)
	}

	fmt.Fprintf(a.out, "fetched %s to %s (%d bytes)\n", args[0], dst, n)
	return nil
}
