package cmd

import (
	"strings"

	"github.com/abdul-hamid-achik/hitshot/packages/core/config"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for hitshot. Request, proxy and
keystore names are completed from the workspace file.

Bash:
  $ source <(hitshot completion bash)

Zsh:
  $ hitshot completion zsh > "${fpath[1]}/_hitshot"

Fish:
  $ hitshot completion fish > ~/.config/fish/completions/hitshot.fish

PowerShell:
  PS> hitshot completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// registerSendCompletions wires workspace-aware completion into send. It
// runs after the send flags exist.
func registerSendCompletions() {
	sendCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return completeNames(toComplete, func(ws *config.Config) []string { return ws.RequestNames() })
	}
	_ = sendCmd.RegisterFlagCompletionFunc("proxy", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return completeNames(toComplete, func(ws *config.Config) []string { return sortedNames(ws.Proxies) })
	})
	_ = sendCmd.RegisterFlagCompletionFunc("keystore", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		names, _ := completeNames(toComplete, func(ws *config.Config) []string { return sortedNames(ws.Keystores) })
		return names, cobra.ShellCompDirectiveDefault
	})
	_ = sendCmd.RegisterFlagCompletionFunc("security", cobra.FixedCompletions(
		[]string{"TLS", "TLSv1", "TLSv1.1", "TLSv1.2", "TLSv1.3"}, cobra.ShellCompDirectiveNoFileComp))
	_ = sendCmd.RegisterFlagCompletionFunc("trust", cobra.FixedCompletions(
		[]string{"strict", "audit-only"}, cobra.ShellCompDirectiveNoFileComp))
	_ = sendCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
		[]string{"console", "json"}, cobra.ShellCompDirectiveNoFileComp))
}

// completeNames lists workspace names with the given prefix. A missing or
// broken workspace completes nothing.
func completeNames(prefix string, names func(*config.Config) []string) ([]string, cobra.ShellCompDirective) {
	ws, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, name := range names(ws) {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
