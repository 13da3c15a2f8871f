package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var backupDataset string

// backupCmd runs the full backup pipeline
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump, encrypt, deliver, and prune backups",
	Long: `Backup dumps each selected dataset out of its container, packs the dump
into an AES-256 encrypted archive, delivers it over Telegram, and prunes
artifacts older than the retention window.

A dataset failing never stops the others; the command exits non-zero when
any dataset failed.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupDataset, "dataset", "all", "dataset to back up (a name, or \"all\")")
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	if err := validateGlobalFlags(); err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	out := newConsole()

	config, err := buildConfig()
	if err != nil {
		return err
	}

	controller, err := buildController(config, logger)
	if err != nil {
		return err
	}

	result, err := controller.RunBackup(cmd.Context(), backupDataset)
	if err != nil {
		out.Error(fmt.Sprintf("Backup failed: %v", err))
		return err
	}

	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			out.Error(fmt.Sprintf("%s: %v", outcome.Dataset, outcome.Err))
			continue
		}
		out.Success(fmt.Sprintf("%s: %s", outcome.Dataset, filepath.Base(outcome.ArchivePath)))
	}
	if result.Swept > 0 {
		out.Info(fmt.Sprintf("Pruned %d expired artifact(s)", result.Swept))
	}

	if result.Failed() {
		return fmt.Errorf("backup finished with failures")
	}
	return nil
}
