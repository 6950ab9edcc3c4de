package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uno-network/uno/pkg/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		uvnName, _ := cmd.Flags().GetString("uvn")
		user, _ := cmd.Flags().GetString("user")
		operation, _ := cmd.Flags().GetString("operation")
		entity, _ := cmd.Flags().GetString("entity")
		successOnly, _ := cmd.Flags().GetBool("success-only")
		failureOnly, _ := cmd.Flags().GetBool("failure-only")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		events, err := audit.Query(audit.Filter{
			UVN:         uvnName,
			User:        user,
			Operation:   operation,
			Entity:      entity,
			SuccessOnly: successOnly,
			FailureOnly: failureOnly,
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			return err
		}

		if app.jsonOutput {
			blob, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(blob))
			return nil
		}

		for _, ev := range events {
			status := green("ok")
			if !ev.Success {
				status = red("error: " + ev.Error)
			}
			fmt.Printf("%s  %-10s %-20s %-20s %s\n", ev.Timestamp.Format("2006-01-02T15:04:05"), ev.UVN, ev.Operation, ev.User, status)
		}
		return nil
	},
}

func init() {
	auditQueryCmd.Flags().String("uvn", "", "Filter by UVN name")
	auditQueryCmd.Flags().String("user", "", "Filter by caller email")
	auditQueryCmd.Flags().String("operation", "", "Filter by operation name")
	auditQueryCmd.Flags().String("entity", "", "Filter by entity, e.g. cell:3")
	auditQueryCmd.Flags().Bool("success-only", false, "Only show successful events")
	auditQueryCmd.Flags().Bool("failure-only", false, "Only show failed events")
	auditQueryCmd.Flags().Int("limit", 50, "Maximum events to return")
	auditQueryCmd.Flags().Int("offset", 0, "Offset into the result set")

	auditCmd.AddCommand(auditQueryCmd)
}
