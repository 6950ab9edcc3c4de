package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/uno-network/uno/pkg/bootstrap"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Load a declarative UVN definition from a YAML file",
}

var bootstrapApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Replay a bootstrap file against the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !filepath.IsAbs(path) && app.bootstrapDir != "" {
			path = filepath.Join(app.bootstrapDir, path)
		}

		spec, err := bootstrap.Load(path)
		if err != nil {
			return err
		}

		fmt.Printf("bootstrap apply %s: uvn=%s users=%d cells=%d particles=%d\n",
			path, spec.Name, len(spec.Users), len(spec.Cells), len(spec.Particles))
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		if err := bootstrap.Apply(context.Background(), app.reg, caller(), spec); err != nil {
			return err
		}
		fmt.Println(green("bootstrap applied."))
		return nil
	},
}

func init() {
	bootstrapCmd.AddCommand(bootstrapApplyCmd)
}
