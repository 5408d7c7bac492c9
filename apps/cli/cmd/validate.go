package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var validateKeystoresFlag bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the workspace file",
	Long: `Validate the workspace file against its schema and check that every
request is actionable and every proxy and keystore reference resolves.

Examples:
  hitshot validate
  hitshot validate --keystores
  hitshot validate --config ./api/hitshot.yaml`,
	Args: cobra.NoArgs,
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().BoolVar(&validateKeystoresFlag, "keystores", false, "Also open every keystore and list its aliases")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	if ws.Path == "" {
		return configError(errors.New("no workspace file found (see hitshot init)"))
	}

	hasErrors := false
	if err := ws.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s:\n%v\n", ws.Path, err)
		hasErrors = true
	}

	if validateKeystoresFlag {
		for _, name := range sortedNames(ws.Keystores) {
			store, _, err := ws.Keystore(name)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error in keystore %s: %v\n", name, err)
				hasErrors = true
				continue
			}
			aliases, err := store.Aliases()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error in keystore %s: %v\n", name, err)
				hasErrors = true
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Keystore %s: %v\n", name, aliases)
		}
	}

	if hasErrors {
		return configError(fmt.Errorf("validation failed"))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d requests)\n", ws.Path, len(ws.Requests))
	return nil
}
