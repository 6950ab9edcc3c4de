package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uno-network/uno/pkg/model"
)

var uvnCmd = &cobra.Command{
	Use:   "uvn",
	Short: "Manage UVNs (unified virtual networks)",
}

var uvnCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new UVN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		address, _ := cmd.Flags().GetString("address")
		owner, _ := cmd.Flags().GetUint32("owner")
		settingsPath, _ := cmd.Flags().GetString("settings")

		if settingsPath == "" {
			return fmt.Errorf("--settings is required")
		}
		var uvnSettings model.Settings
		data, err := os.ReadFile(settingsPath)
		if err != nil {
			return fmt.Errorf("reading settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &uvnSettings); err != nil {
			return fmt.Errorf("parsing settings file: %w", err)
		}

		fmt.Printf("uvn create %s (address=%q owner=%d)\n", name, address, owner)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		ctx := context.Background()
		if err := app.reg.Create(ctx, caller(), name, address, owner, uvnSettings); err != nil {
			return err
		}
		fmt.Println(green("UVN created."))
		return nil
	},
}

var uvnShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a UVN's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agg, err := app.reg.Get(context.Background(), args[0])
		if err != nil {
			return err
		}

		if app.jsonOutput {
			blob, err := json.MarshalIndent(agg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(blob))
			return nil
		}

		fmt.Printf("uvn:          %s\n", agg.Name)
		fmt.Printf("address:      %s\n", dash(agg.Address))
		fmt.Printf("owner:        %d\n", agg.OwnerID)
		fmt.Printf("state:        %s\n", agg.State)
		fmt.Printf("config_id:    %s\n", dash(agg.CurrentConfigID))
		fmt.Printf("cells:        %d\n", len(agg.Cells))
		fmt.Printf("particles:    %d\n", len(agg.Particles))
		return nil
	},
}

var uvnRedeployCmd = &cobra.Command{
	Use:   "redeploy <name>",
	Short: "Compute and persist a new deployment snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		fmt.Printf("uvn redeploy %s\n", name)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		configID, noChange, err := app.reg.Redeploy(context.Background(), caller(), name)
		if err != nil {
			return err
		}
		if noChange {
			fmt.Println(yellow("no change: config_id " + configID + " is already current"))
			return nil
		}
		fmt.Println(green("redeployed: config_id " + configID))
		return nil
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	uvnCreateCmd.Flags().String("address", "", "The UVN's own public address, if any")
	uvnCreateCmd.Flags().Uint32("owner", 0, "Owning user id")
	uvnCreateCmd.Flags().String("settings", "", "Path to a YAML file holding the UVN's model.Settings")

	uvnCmd.AddCommand(uvnCreateCmd, uvnShowCmd, uvnRedeployCmd)
}
