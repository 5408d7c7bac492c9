package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the requests in the workspace",
	Long: `List the named requests, proxies and keystores of the workspace.

Examples:
  hitshot list
  hitshot list --config ./api/hitshot.yaml`,
	Args: cobra.NoArgs,
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ws.Path == "" {
		fmt.Fprintf(out, "No workspace file found (see hitshot init)\n")
		return nil
	}

	fmt.Fprintf(out, "\n%s:\n", ws.Path)
	for _, name := range ws.RequestNames() {
		spec := ws.Requests[name]
		method := strings.ToUpper(spec.Method)
		if method == "" {
			method = "GET"
		}
		fmt.Fprintf(out, "  - %s: %s %s\n", name, method, spec.URL)

		var extras []string
		if spec.Security != "" {
			extras = append(extras, "security: "+spec.Security)
		}
		if spec.Proxy != "" {
			extras = append(extras, "proxy: "+spec.Proxy)
		}
		if spec.Keystore != "" {
			extras = append(extras, "keystore: "+spec.Keystore)
		}
		if len(extras) > 0 {
			fmt.Fprintf(out, "    %s\n", strings.Join(extras, ", "))
		}
	}

	if len(ws.Proxies) > 0 {
		fmt.Fprintf(out, "\nproxies:\n")
		for _, name := range sortedNames(ws.Proxies) {
			p := ws.Proxies[name]
			fmt.Fprintf(out, "  - %s: %s:%d\n", name, p.Host, p.Port)
		}
	}
	if len(ws.Keystores) > 0 {
		fmt.Fprintf(out, "\nkeystores:\n")
		for _, name := range sortedNames(ws.Keystores) {
			fmt.Fprintf(out, "  - %s: %s\n", name, ws.Keystores[name].Path)
		}
	}

	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
