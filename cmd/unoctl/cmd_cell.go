package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cellCmd = &cobra.Command{
	Use:   "cell",
	Short: "Manage a UVN's cells",
}

var cellDefineCmd = &cobra.Command{
	Use:   "define <uvn> <name>",
	Short: "Register a new cell",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		uvnName, name := args[0], args[1]
		address, _ := cmd.Flags().GetString("address")
		lans, _ := cmd.Flags().GetString("lans")
		owner, _ := cmd.Flags().GetUint32("owner")

		fmt.Printf("cell define %s/%s (address=%q lans=%v owner=%d)\n", uvnName, name, address, splitCSV(lans), owner)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		id, err := app.reg.DefineCell(context.Background(), caller(), uvnName, name, address, splitCSV(lans), owner)
		if err != nil {
			return err
		}
		fmt.Println(green(fmt.Sprintf("cell defined: id %d", id)))
		return nil
	},
}

var cellExcludeCmd = &cobra.Command{
	Use:   "exclude <uvn> <cell-id>",
	Short: "Exclude a cell from future deployments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		uvnName := args[0]
		cellID, err := parseUint32(args[1])
		if err != nil {
			return fmt.Errorf("invalid cell id %q: %w", args[1], err)
		}

		fmt.Printf("cell exclude %s/%d\n", uvnName, cellID)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		if err := app.reg.ExcludeCell(context.Background(), caller(), uvnName, cellID); err != nil {
			return err
		}
		fmt.Println(green("cell excluded; uvn returned to draft"))
		return nil
	},
}

func init() {
	cellDefineCmd.Flags().String("address", "", "Public host (no port), empty for a private (NATed) cell")
	cellDefineCmd.Flags().String("lans", "", "Comma-separated list of allowed LAN CIDRs")
	cellDefineCmd.Flags().Uint32("owner", 0, "Owning user id")

	cellCmd.AddCommand(cellDefineCmd, cellExcludeCmd)
}
