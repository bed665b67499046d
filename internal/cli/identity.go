package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DobryySoul/meshsync"
)

func init() {
	rootCmd.AddCommand(identityCmd)
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show this device's mesh identity, creating it if needed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		id, err := meshsync.LoadOrCreateIdentity(cfg.IdentityPath, cfg.DeviceName)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Device ID: %s\n", id.DeviceID)
		fmt.Fprintf(w, "Name:      %s\n", id.Name)
		fmt.Fprintf(w, "Created:   %s\n", id.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "File:      %s\n", cfg.IdentityPath)
		return nil
	},
}
