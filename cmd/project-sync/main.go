package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/project-sync/internal/remote"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "project-sync",
		Short:         "Keep local tenant project trees in sync with the remote file store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("tenant", "t", "", "Tenant name (defaults to TENANT)")

	root.AddCommand(
		newSyncCmd(),
		newWatchCmd(),
		newCommandCmd(),
		newStatusCmd(),
	)

	return root
}

// printError writes err and, for remote failures, every error line the
// remote returned. Network failures get a hint about where to look.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		for _, line := range apiErr.Errors {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}

	if remote.IsTransport(err) {
		fmt.Fprintln(w, "  - check BASE_URL and network connectivity")
	}
}
