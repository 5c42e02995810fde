// Command client talks to a filekeeper server.
//
//	client [flags] <command> [args]
//
// Run it without a command to list the available ones.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/filekeeper/internal/client/cli"
	"github.com/dmitrijs2005/filekeeper/internal/client/config"
	"github.com/dmitrijs2005/filekeeper/internal/flagx"
)

func main() {
	cfg := config.LoadConfig()
	args := flagx.Command(os.Args[1:], append([]string{"-c", "-config"}, config.Flags...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewApp(cfg, os.Stdout).Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
