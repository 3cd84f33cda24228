package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/provider/cloudb"
	"github.com/kestrelframe/photosync/internal/provider/drivea"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "login",
		Short:       "Authenticate with the configured provider",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogin,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(nil)

	cfg, err := config.Load(cliOverridesFromFlags(cmd), config.ReadEnvOverrides(), logger)
	if err != nil {
		return configError(fmt.Errorf("loading config: %w", err))
	}

	ctx := cmd.Context()

	switch cfg.Provider.Name {
	case drivea.Name:
		if _, err := drivea.Login(ctx, cfg.Provider.TokenPath, printDeviceAuth, logger); err != nil {
			return authError(err)
		}
	case cloudb.Name:
		if err := loginCloudB(ctx, cfg); err != nil {
			return authError(err)
		}
	default:
		return configError(fmt.Errorf("unknown provider %q", cfg.Provider.Name))
	}

	fmt.Println("Login successful.")

	return nil
}

func printDeviceAuth(da drivea.DeviceAuth) {
	fmt.Printf("To sign in, visit %s and enter code %s\n", da.VerificationURI, da.UserCode)
}

// loginCloudB walks the operator through the authorization-code flow:
// visit a URL, authorize, paste back the resulting code. Unlike drivea's
// device-code flow there is no polling step, so the code is read
// directly from stdin.
func loginCloudB(ctx context.Context, cfg *config.Config) error {
	fmt.Println("Visit the URL below, authorize access, then paste the resulting code.")
	fmt.Println(cloudb.AuthCodeURL("photosync-login"))
	fmt.Print("Code: ")

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}

	_, err = cloudb.ExchangeCode(ctx, cfg.Provider.TokenPath, strings.TrimSpace(code), buildLogger(cfg))

	return err
}
