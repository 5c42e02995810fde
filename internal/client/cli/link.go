package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
)

func (a *App) link(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ttl := fs.Duration("ttl", 0, "link validity")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 || *ttl < 0 {
		return usageError("link")
	}

	url, err := a.api.Link(ctx, fs.Arg(0), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, url)
	return nil
}
