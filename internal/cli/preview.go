package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/models"
)

func newPreviewCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List the folders a run would process",
		Long: `List the candidate folders for a scope. 'run' processes all of them
unless --folder narrows the selection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := models.Scope(scope)
			if !sc.Valid() {
				return fmt.Errorf("unknown scope %q (expected daily, monthly or all_days)", scope)
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}
			preview, err := client.Preview(GetContext(), sc)
			if err != nil {
				return fmt.Errorf("failed to preview folders: %w", err)
			}
			if preview.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: folder preview: %s\n", preview.Error)
			}

			return render(cmd.OutOrStdout(), preview, func(w *textWriter) {
				w.Printf("%d folder(s) in scope %s\n", len(preview.Folders), sc)
				for _, f := range preview.Folders {
					w.Printf("  %s\n", f)
				}
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(models.ScopeDaily), "Folder scope: daily, monthly or all_days")

	return cmd
}
