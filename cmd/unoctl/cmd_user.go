package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage a UVN's users",
}

var userDefineCmd = &cobra.Command{
	Use:   "define <uvn> <email>",
	Short: "Register a new user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		uvnName, email := args[0], args[1]
		displayName, _ := cmd.Flags().GetString("display-name")
		realm, _ := cmd.Flags().GetString("realm")
		prompt, _ := cmd.Flags().GetBool("prompt-password")

		var credentialHash []byte
		if prompt {
			hash, err := promptCredential()
			if err != nil {
				return err
			}
			credentialHash = hash
		}

		fmt.Printf("user define %s/%s (display_name=%q realm=%q)\n", uvnName, email, displayName, realm)
		if !app.executeMode {
			printDryRunNotice()
			return nil
		}

		id, err := app.reg.DefineUser(context.Background(), caller(), uvnName, email, displayName, realm, credentialHash)
		if err != nil {
			return err
		}
		fmt.Println(green(fmt.Sprintf("user defined: id %d", id)))
		return nil
	},
}

// promptCredential reads a password twice from the terminal (no echo) and
// returns its bcrypt hash. The registry never sees a plaintext password.
func promptCredential() ([]byte, error) {
	fmt.Print("Password: ")
	pw1, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	fmt.Print("Confirm password: ")
	pw2, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("reading password confirmation: %w", err)
	}
	if string(pw1) != string(pw2) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return bcrypt.GenerateFromPassword(pw1, bcrypt.DefaultCost)
}

func init() {
	userDefineCmd.Flags().String("display-name", "", "Display name")
	userDefineCmd.Flags().String("realm", "", "Authentication realm")
	userDefineCmd.Flags().Bool("prompt-password", false, "Prompt for a password to hash and store")

	userCmd.AddCommand(userDefineCmd)
}
