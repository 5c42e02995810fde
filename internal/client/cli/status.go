package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var errUnhealthy = errors.New("service unhealthy")

func (a *App) status(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usageError("status")
	}
	st, err := a.api.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "status:  %s\n", st.Status)
	fmt.Fprintf(a.out, "db:      %.2fms\n", st.DBLatencyMs)
	fmt.Fprintf(a.out, "cache:   %.2fms\n", st.CacheLatencyMs)
	fmt.Fprintf(a.out, "storage: %.2fms\n", st.StorageLatencyMs)

	names := make([]string, 0, len(st.Errors))
	for name := range st.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.out, "%s error: %s\n", name, st.Errors[name])
	}

	if !st.Healthy() {
		return errUnhealthy
	}
	return nil
}
