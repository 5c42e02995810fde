package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

func (a *App) list(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usageError("list")
	}
	resp, err := a.api.List(ctx)
	if err != nil {
		return err
	}
	if len(resp.Files) == 0 {
		fmt.Fprintln(a.out, "no files")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tVERSION\tSIZE\tUPDATED\tSHA256")
	for _, f := range resp.Files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", f.Path, f.Version, f.Size, f.UpdatedAt.Format(time.DateTime), f.Checksum)
	}
	return tw.Flush()
}

func (a *App) revisions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revisions", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("n", 0, "max revisions")
	deleted := fs.Bool("deleted", false, "include deleted revisions")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return usageError("revisions")
	}

	revs, err := a.api.Revisions(ctx, fs.Arg(0), *limit, *deleted)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tID\tSIZE\tMODIFIED\tSHA256\t")
	for _, r := range revs {
		mark := ""
		if r.IsDeleted {
			mark = "deleted"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.Version, r.ID, r.Size, r.ModifiedAt.Format(time.DateTime), r.Checksum, mark)
	}
	return tw.Flush()
}

func (a *App) find(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("find")
	}
	v, err := a.api.FindByChecksum(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s version %d (id %s, %d bytes)\n", v.Path, v.Version, v.ID, v.Size)
	return nil
}
