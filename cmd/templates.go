/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/accountd/apiserver/internal/notify"
	"github.com/accountd/apiserver/internal/server"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage email template overrides",
}

var templatesPushCmd = &cobra.Command{
	Use:   "push <dir>",
	Short: "Upload <kind>.html files from dir to the template bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime("templates")
		if err != nil {
			return err
		}

		objects, err := server.OpenTemplateStorage(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("TEMPLATE_STORE is not configured")
		}
		if err := objects.EnsureBucket(cmd.Context()); err != nil {
			return err
		}

		for _, kind := range notify.Kinds() {
			path := filepath.Join(args[0], string(kind)+".html")
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return err
			}
			if err := notify.DefaultTemplates().Override(kind, string(data)); err != nil {
				return err
			}
			key := notify.TemplateKey(cfg.Templates.Prefix, kind)
			if err := objects.WriteObject(cmd.Context(), key, data, "text/html; charset=utf-8"); err != nil {
				return err
			}
			logger.Info("template uploaded", "key", key, "bucket", objects.Bucket())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesPushCmd)
}
