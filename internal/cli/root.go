// Package cli wires the peak commands. Commands talk to the platform
// through a Session built from global flags; everything else is output
// shaping.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peakplatform/peak-go/internal/debug"
	"github.com/peakplatform/peak-go/internal/session"
)

// rootFlags holds global CLI flags. Package-level mutable state that is
// reset at the start of every Execute call; tests depend on this reset.
type rootFlags struct {
	Debug     bool
	DryRun    bool
	Stage     string
	Subdomain string
	BaseURL   string
	Query     string
}

var flags rootFlags

// newSession builds the session used by commands. Swappable in tests.
var newSession = func() (*session.Session, error) {
	opts := []session.Option{}
	if flags.Stage != "" {
		opts = append(opts, session.WithStage(flags.Stage))
	}
	if flags.Subdomain != "" {
		opts = append(opts, session.WithSubdomain(flags.Subdomain))
	}
	if flags.BaseURL != "" {
		opts = append(opts, session.WithBaseURL(flags.BaseURL))
	}
	return session.New(opts...)
}

// Execute runs the root command.
func Execute(ctx context.Context, args []string) error {
	// Reset to defaults for each execution, see the rootFlags comment.
	flags = rootFlags{}

	root := &cobra.Command{
		Use:           "peak",
		Short:         "CLI for the Peak platform API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			debug.SetupLogger(flags.Debug)
			ctx = debug.WithDebug(ctx, flags.Debug)
			ctx = debug.WithDryRun(ctx, flags.DryRun)

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flags.DryRun, "dry-run", false, "Preview the request without executing it")
	root.PersistentFlags().StringVar(&flags.Stage, "stage", "", "Deployment stage: dev|latest|test|beta|prod|parvati (env STAGE)")
	root.PersistentFlags().StringVar(&flags.Subdomain, "subdomain", "", "Service subdomain under the stage host")
	root.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "Bypass stage-based address derivation (testing)")
	root.PersistentFlags().StringVarP(&flags.Query, "query", "q", "", "JQ expression applied to JSON output")

	root.AddCommand(newAPICmd())
	root.AddCommand(newArtifactCmd())
	root.AddCommand(newAuthCmd())
	root.AddCommand(newVersionCmd())

	if _, err := root.ExecuteC(); err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), err)
		return err
	}
	return nil
}

// parseFields turns key=value pairs into a request body map. Values are
// kept as strings; use --body for typed JSON.
func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	body := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", pair)
		}
		body[key] = value
	}
	return body, nil
}
