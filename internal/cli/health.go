package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/constants"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable and healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			client, err := getAPIClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), constants.APIConnectionTestTimeout)
			defer cancel()

			h, err := client.Health(ctx)
			if err != nil {
				logger.Error().Err(err).Str("url", client.BaseURL()).Msg("Health check failed")
				return fmt.Errorf("backend at %s is unreachable: %w", client.BaseURL(), err)
			}

			if err := render(cmd.OutOrStdout(), h, func(w *textWriter) {
				writeHealth(w, h)
			}); err != nil {
				return err
			}
			if !h.OK {
				return errors.New("backend reports failing checks")
			}
			return nil
		},
	}
}
