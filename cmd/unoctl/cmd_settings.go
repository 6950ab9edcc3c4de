package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uno-network/uno/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and edit unoctl's persistent preferences",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return err
		}
		fmt.Printf("default_uvn:        %s\n", dash(s.DefaultUVN))
		fmt.Printf("last_uvn:           %s\n", dash(s.LastUVN))
		fmt.Printf("bootstrap_dir:      %s\n", dash(s.GetBootstrapDir()))
		fmt.Printf("redis_addr:         %s\n", dash(s.GetRedisAddr()))
		fmt.Printf("execute_by_default: %v\n", s.ExecuteByDefault)
		fmt.Printf("audit_log_path:     %s\n", dash(s.AuditLogPath))
		return nil
	},
}

var settingsSetUVNCmd = &cobra.Command{
	Use:   "set-uvn <name>",
	Short: "Set the default UVN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return err
		}
		s.SetUVN(args[0])
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Println(green("default UVN set to " + args[0]))
		return nil
	},
}

var settingsSetRedisAddrCmd = &cobra.Command{
	Use:   "set-redis-addr <addr>",
	Short: "Set the registry store's Redis address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return err
		}
		s.SetRedisAddr(args[0])
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Println(green("redis address set to " + args[0]))
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset all settings to defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return err
		}
		s.Clear()
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Println(green("settings cleared"))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetUVNCmd, settingsSetRedisAddrCmd, settingsClearCmd)
}
