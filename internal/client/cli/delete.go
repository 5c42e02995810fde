package cli

import (
	"context"
	"fmt"
)

func (a *App) deleteFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("rm")
	}
	if err := a.api.DeleteFile(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", args[0])
	return nil
}

func (a *App) deleteVersion(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("rmversion")
	}
	if err := a.api.DeleteVersion(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted version %s\n", args[0])
	return nil
}
