package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peakplatform/peak-go/internal/artifact"
	"github.com/peakplatform/peak-go/internal/debug"
)

func newArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Package directories into upload artifacts",
	}
	cmd.AddCommand(newArtifactPackageCmd())
	return cmd
}

func newArtifactPackageCmd() *cobra.Command {
	var (
		output      string
		maxSize     int64
		ignoreFiles []string
	)

	cmd := &cobra.Command{
		Use:   "package <dir>",
		Short: "Compress a directory into a zip bundle honoring ignore patterns",
		Long: `Compress a directory into a zip bundle honoring ignore patterns.

Ignore files must sit directly inside the packaged directory; when none
are named, a .dockerignore there is picked up automatically. With
--dry-run the include set is printed as a tree and nothing is written.`,
		Example: `  # Package the current directory
  peak artifact package . -o artifact.zip

  # Preview what would be included
  peak artifact package ./app --dry-run

  # Use a custom ignore file and a tighter size cap
  peak artifact package ./app --ignore-file .peakignore --max-size 5242880`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			out := cmd.OutOrStdout()

			if debug.IsDryRun(cmd.Context()) {
				tree, err := artifact.Tree(root, ignoreFiles)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(out, tree)
				return nil
			}

			bundle, err := artifact.CompressWithLimit(root, ignoreFiles, maxSize)
			if err != nil {
				return err
			}
			defer func() { _ = bundle.Close() }()

			dst, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := io.Copy(dst, bundle); err != nil {
				_ = dst.Close()
				_ = os.Remove(output)
				return err
			}
			if err := dst.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "wrote %s (%d bytes)\n", output, bundle.Size())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "artifact.zip", "Destination path for the bundle")
	cmd.Flags().Int64Var(&maxSize, "max-size", artifact.DefaultMaxSize, "Maximum compressed size in bytes")
	cmd.Flags().StringArrayVar(&ignoreFiles, "ignore-file", nil, "Ignore file inside the packaged directory (default .dockerignore)")

	return cmd
}
