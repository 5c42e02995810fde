package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/client/api"
	"github.com/dmitrijs2005/filekeeper/internal/client/config"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// API is the subset of *api.Client the commands use.
type API interface {
	Upload(ctx context.Context, r api.UploadRequest) (*models.FileResponse, error)
	Download(ctx context.Context, ref string, w io.Writer) (*api.DownloadInfo, error)
	List(ctx context.Context) (*models.ListFilesResponse, error)
	Revisions(ctx context.Context, ref string, limit int, includeDeleted bool) ([]models.FileVersionResponse, error)
	Status(ctx context.Context) (*models.ServiceStatusResponse, error)
	Link(ctx context.Context, ref string, ttl time.Duration) (string, error)
	FindByChecksum(ctx context.Context, checksum string) (*models.FileVersionResponse, error)
	DeleteVersion(ctx context.Context, versionID string) error
	DeleteFile(ctx context.Context, ref string) error
	HTTPClient() *http.Client
}

type App struct {
	config *config.Config
	api    API
	out    io.Writer
}

func NewApp(c *config.Config, out io.Writer) *App {
	return &App{
		config: c,
		api:    api.New(c.ServerURL, c.Token, c.RequestTimeout),
		out:    out,
	}
}

type handler func(a *App, ctx context.Context, args []string) error

var commands = map[string]handler{
	"upload":    (*App).upload,
	"download":  (*App).download,
	"fetch":     (*App).fetch,
	"list":      (*App).list,
	"revisions": (*App).revisions,
	"status":    (*App).status,
	"link":      (*App).link,
	"find":      (*App).find,
	"rm":        (*App).deleteFile,
	"rmversion": (*App).deleteVersion,
}

var usages = []struct{ name, text string }{
	{"upload", "upload <local-file> <remote-path>"},
	{"download", "download <ref> [local-name]"},
	{"fetch", "fetch <ref> [local-name]"},
	{"list", "list"},
	{"revisions", "revisions [-n limit] [-deleted] <ref>"},
	{"status", "status"},
	{"link", "link [-ttl duration] <ref>"},
	{"find", "find <sha256>"},
	{"rm", "rm <ref>"},
	{"rmversion", "rmversion <version-id>"},
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" {
		a.usage()
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd(a, ctx, args[1:])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: filekeeper-client [flags] <command> [args]")
	fmt.Fprintln(a.out, "Commands:")
	for _, u := range usages {
		fmt.Fprintf(a.out, "  %s\n", u.text)
	}
}

func usageError(name string) error {
	for _, u := range usages {
		if u.name == name {
			return fmt.Errorf("usage: %s", u.text)
		}
	}
	return fmt.Errorf("usage: %s", name)
}
