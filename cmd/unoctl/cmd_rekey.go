package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uno-network/uno/pkg/registry"
)

var rekeyCmd = &cobra.Command{
	Use:   "rekey <uvn>",
	Short: "Rotate an identity keypair (uvn, cell, or particle)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uvnName := args[0]
		kind, _ := cmd.Flags().GetString("scope")
		id, _ := cmd.Flags().GetUint32("id")

		scope := registry.RekeyScope{Kind: kind, ID: id}
		fmt.Printf("rekey %s scope=%s id=%d\n", uvnName, kind, id)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		if err := app.reg.Rekey(context.Background(), caller(), uvnName, scope); err != nil {
			return err
		}
		fmt.Println(green("rekeyed"))
		return nil
	},
}

func init() {
	rekeyCmd.Flags().String("scope", "uvn", `Rekey scope: "uvn", "cell", or "particle"`)
	rekeyCmd.Flags().Uint32("id", 0, "Entity id, ignored for uvn scope")
}
