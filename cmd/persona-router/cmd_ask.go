package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/upb/persona-router/app"
	"github.com/upb/persona-router/config"
	"github.com/upb/persona-router/services/routing"
)

var (
	askPersona string
	askSystem  string
)

// askCmd routes one prompt and prints the reply
var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Route a single prompt from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askPersona, "persona", "p", "", "Persona to use (defaults to DEFAULT_PERSONA)")
	askCmd.Flags().StringVar(&askSystem, "system", "", "System instruction")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}
	// Route events are a server concern
	cfg.Database.ConnectionString = ""

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	persona := askPersona
	if persona == "" {
		persona = cfg.Router.DefaultPersona
	}

	result, err := deps.Router.Route(ctx, &routing.RouteRequest{
		RequestID:         uuid.NewString(),
		Persona:           persona,
		Prompt:            strings.Join(args, " "),
		SystemInstruction: askSystem,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "served by %s (%s/%s) in %s\n",
		result.ServedBy, result.Vendor, result.Model, result.Latency.Round(time.Millisecond))
	return nil
}
