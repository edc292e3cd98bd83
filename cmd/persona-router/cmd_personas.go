package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upb/persona-router/config"
	"github.com/upb/persona-router/models"
)

var (
	personasFile string
	personasJSON bool
)

// personasCmd validates a persona table and prints it
var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Validate and print a persona table",
	Long: `Load a persona table and print it.

Without --file the built-in table is printed. An invalid file exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		personas, err := config.LoadPersonas(personasFile)
		if err != nil {
			return err
		}
		if personasJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(personas)
		}
		return printPersonas(cmd.OutOrStdout(), personas)
	},
}

func init() {
	personasCmd.Flags().StringVarP(&personasFile, "file", "f", envOr("PERSONAS_FILE", ""), "Persona table (YAML)")
	personasCmd.Flags().BoolVar(&personasJSON, "json", false, "Print as JSON")
}

func printPersonas(out io.Writer, personas []models.Persona) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSONA\tPRIMARY\tTIMEOUT\tBACKUP\tBACKUP TIMEOUT")
	for _, p := range personas {
		backup, backupTimeout := "-", "-"
		if p.Backup != nil {
			backup = p.Backup.String()
			backupTimeout = "none"
			if p.Backup.Timeout > 0 {
				backupTimeout = p.Backup.Timeout.String()
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Primary.String(), p.Primary.Timeout, backup, backupTimeout)
	}
	return tw.Flush()
}
