package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	restorePostgresOnly bool
	restoreSQLiteOnly   bool
	askPassphrase       bool
)

// restoreCmd decrypts an artifact and loads it back into the containers
var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Decrypt an artifact and restore it into the running containers",
	Long: `Restore decrypts an encrypted artifact and loads the contained dumps back
into the selected datasets, replacing their current contents.

The passphrase comes from BACKUP_PASSWORD, or from an interactive prompt
with --ask-passphrase.

Examples:
  # Restore everything the archive contains
  krisa-backup restore /opt/krisa-backups/data/krisa-db-21-01-26.tar.gz.gpg

  # Restore only the PostgreSQL dataset, prompting for the passphrase
  krisa-backup restore --postgres-only --ask-passphrase krisa-db-21-01-26.tar.gz.gpg`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restorePostgresOnly, "postgres-only", false, "restore only the postgres dataset")
	restoreCmd.Flags().BoolVar(&restoreSQLiteOnly, "sqlite-only", false, "restore only the sqlite dataset")
	restoreCmd.Flags().BoolVar(&askPassphrase, "ask-passphrase", false, "prompt for the passphrase instead of reading BACKUP_PASSWORD")
	restoreCmd.MarkFlagsMutuallyExclusive("postgres-only", "sqlite-only")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
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

	if askPassphrase {
		passphrase, err := promptPassphrase()
		if err != nil {
			return err
		}
		config.Secrets.Passphrase = passphrase
	}

	controller, err := buildController(config, logger)
	if err != nil {
		return err
	}

	selector := "all"
	switch {
	case restorePostgresOnly:
		selector = "postgres"
	case restoreSQLiteOnly:
		selector = "sqlite"
	}

	if err := controller.RunRestore(cmd.Context(), args[0], selector); err != nil {
		out.Error(fmt.Sprintf("Restore failed: %v", err))
		return err
	}

	out.Success("Restore completed")
	return nil
}

// promptPassphrase reads the passphrase from the terminal without echo
func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(passphrase), nil
}
