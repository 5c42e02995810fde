// Command server runs the filekeeper service.
//
//	server [flags]                 serve the HTTP API and gRPC health endpoint
//	server [flags] token <owner>   print a bearer token for owner and exit
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/filekeeper/internal/flagx"
	"github.com/dmitrijs2005/filekeeper/internal/server"
	"github.com/dmitrijs2005/filekeeper/internal/server/auth"
	"github.com/dmitrijs2005/filekeeper/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	args := flagx.Positional(os.Args[1:], append([]string{"-c", "-config"}, config.Flags...))
	if len(args) > 0 {
		if err := command(cfg, args); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	app.Run(ctx)
}

func command(cfg *config.Config, args []string) error {
	switch args[0] {
	case "token":
		if len(args) != 2 {
			return fmt.Errorf("usage: server token <owner>")
		}
		tok, err := auth.GenerateToken(args[1], []byte(cfg.SecretKey), cfg.TokenValidityDuration)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
