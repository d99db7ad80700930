package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFetchCmd creates the 'fetch' subcommand for one-off downloads.
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <article-url|id>",
		Short: "Download the media of a single article",
		Long: `Resolves one article page, given its full URL or numeric ID, and downloads
its media into the output directory. The processed set and metadata are
left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetchCommand,
	}
	cmd.Flags().String("out", "data/raw/okapi", "output directory")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, args []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(s.cfg, s.logger)
	if err != nil {
		return err
	}

	article, dl, err := a.Fetch(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("fetch %s: %w", args[0], err)
	}
	if dl.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "already present: %s\n", dl.Path)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes) from %s\n", dl.Path, dl.Bytes, article.MediaURL)
	return nil
}
