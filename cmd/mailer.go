/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/accountd/apiserver/internal/mailer"
	"github.com/accountd/apiserver/internal/metrics"
	"github.com/accountd/apiserver/internal/server"
)

// mailerCmd represents the mailer command
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Delivers account emails from the notification channel",
	Long: `Consumes the notification channel (NOTIFY_BACKEND=rabbitmq or pubsub)
and delivers each email over SMTP. Usage:

	apiserver mailer
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime("mailer")
		if err != nil {
			return err
		}

		if cfg.Notify.Backend == "memory" || cfg.Notify.Backend == "" {
			return errors.New("the memory backend is served by the api server; set NOTIFY_BACKEND to rabbitmq or pubsub")
		}

		broker, err := server.OpenBroker(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer broker.Close()

		sender, err := server.NewSender(cfg, logger)
		if err != nil {
			return err
		}

		return mailer.New(broker, cfg.Notify.Channel, sender, metrics.New(), logger).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)
}
