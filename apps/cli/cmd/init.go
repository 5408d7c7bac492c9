package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitshot/packages/core/config"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitshot workspace",
	Long: `Initialize a new hitshot workspace in the current directory.

This creates:
  - hitshot.yaml   - Workspace with example requests, a proxy and a keystore
  - .env.example   - Variables the workspace refers to

Examples:
  hitshot init
  hitshot init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func exampleWorkspace() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Defaults.Headers = map[string]string{
		"User-Agent": "hitshot/" + version,
	}
	cfg.Requests = map[string]config.RequestSpec{
		"health": {
			URL:      "${BASE_URL:-https://localhost:8443}/health",
			Security: "TLSv1.3",
		},
		"create": {
			URL:         "${BASE_URL:-https://localhost:8443}/items",
			Method:      "POST",
			ContentType: "application/json",
			Body:        `{"name": "example"}`,
			Headers:     []http.Header{{Name: "X-Request-Source", Value: "hitshot"}},
			Auth:        &config.BasicAuth{Username: "${API_USER:-admin}", Password: "${API_PASSWORD}"},
		},
		"mtls": {
			URL:      "${MTLS_URL:-https://localhost:9443}/whoami",
			Security: "TLSv1.2",
			Keystore: "client",
		},
		"via-proxy": {
			URL:   "https://example.com/",
			Proxy: "corporate",
		},
	}
	cfg.Proxies = map[string]config.ProxySpec{
		"corporate": {Host: "proxy.local", Port: 3128, Username: "${PROXY_USER}", Password: "${PROXY_PASSWORD}"},
	}
	cfg.Keystores = map[string]config.KeystoreSpec{
		"client": {Path: "certs/client.p12", Password: "${KEYSTORE_PASSWORD}"},
	}
	return cfg
}

const exampleDotEnv = `BASE_URL=https://localhost:8443
API_USER=admin
API_PASSWORD=change-me
MTLS_URL=https://localhost:9443
PROXY_USER=
PROXY_PASSWORD=
KEYSTORE_PASSWORD=changeit
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "hitshot.yaml")
	envFile := filepath.Join(cwd, ".env.example")

	if !forceInit {
		for _, f := range []string{configFile, envFile} {
			if _, err := os.Stat(f); err == nil {
				return usageError(fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	if err := exampleWorkspace().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create workspace file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(envFile, []byte(exampleDotEnv), 0644); err != nil {
		return fmt.Errorf("failed to create env file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", envFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitshot workspace initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Copy .env.example to .env, then run 'hitshot send health -v'.\n")

	return nil
}
