package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/filekeeper/internal/client/api"
)

func (a *App) upload(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("upload")
	}
	local, remote := args[0], args[1]

	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", local)
	}

	resp, err := a.api.Upload(ctx, api.UploadRequest{
		Body:   f,
		Size:   fi.Size(),
		Name:   filepath.Base(local),
		Path:   remote,
		Bucket: a.config.Bucket,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", local, err)
	}

	fmt.Fprintf(a.out, "uploaded %s as version %d (%d bytes, sha256 %s)\n", resp.Path, resp.Version, resp.Size, resp.Checksum)
	return nil
}
