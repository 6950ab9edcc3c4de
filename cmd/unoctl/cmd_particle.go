package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var particleCmd = &cobra.Command{
	Use:   "particle",
	Short: "Manage a UVN's particles",
}

var particleDefineCmd = &cobra.Command{
	Use:   "define <uvn> <name>",
	Short: "Register a new particle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		uvnName, name := args[0], args[1]
		owner, _ := cmd.Flags().GetUint32("owner")

		fmt.Printf("particle define %s/%s (owner=%d)\n", uvnName, name, owner)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		id, err := app.reg.DefineParticle(context.Background(), caller(), uvnName, name, owner)
		if err != nil {
			return err
		}
		fmt.Println(green(fmt.Sprintf("particle defined: id %d", id)))
		return nil
	},
}

func init() {
	particleDefineCmd.Flags().Uint32("owner", 0, "Owning user id")
	particleCmd.AddCommand(particleDefineCmd)
}
