package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/provider/cloudb"
	"github.com/kestrelframe/photosync/internal/provider/drivea"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the configured provider's saved credentials",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogout,
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(nil)

	cfg, err := config.Load(cliOverridesFromFlags(cmd), config.ReadEnvOverrides(), logger)
	if err != nil {
		return configError(fmt.Errorf("loading config: %w", err))
	}

	switch cfg.Provider.Name {
	case drivea.Name:
		err = drivea.Logout(cfg.Provider.TokenPath, logger)
	case cloudb.Name:
		err = cloudb.Logout(cfg.Provider.TokenPath, logger)
	default:
		return configError(fmt.Errorf("unknown provider %q", cfg.Provider.Name))
	}

	if err != nil {
		return authError(err)
	}

	fmt.Println("Logged out.")

	return nil
}
