package main

import (
	"encoding/json"

	"carechat/application/queries"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/di"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect stored user profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user-identifier>",
	Short: "Print a user's profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *di.Container) error {
			result, err := c.QueryBus.Ask(cmd.Context(), queries.GetProfileQuery{
				UserIdentifier: args[0],
				Verified:       valueobjects.NewIdentity(args[0]),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		})
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
}
