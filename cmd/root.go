package cmd

import (
	"fmt"
	"os"
	"strconv"

	"krisa-backup/internal/backup"
	"krisa-backup/internal/console"
	"krisa-backup/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	backupDir     string
	retentionDays int
	datasetFile   string
	logFile       string
	verbose       bool
	quiet         bool
	noColor       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "krisa-backup",
	Short: "Encrypted backup and restore for containerized databases",
	Long: `krisa-backup dumps the stack's PostgreSQL and SQLite databases out of
their containers, packs each dump into an AES-256 encrypted archive,
delivers the artifacts over Telegram, and prunes artifacts older than
the retention window.

Secrets are read from the environment:
  BOT_TOKEN              Telegram bot token
  ADMIN_ID               Telegram chat receiving artifacts
  BACKUP_PASSWORD        passphrase protecting the archives
  BACKUP_RETENTION_DAYS  days to keep artifacts (default 7)

Examples:
  # Back up every dataset
  krisa-backup backup

  # Back up only the PostgreSQL dataset into a custom directory
  krisa-backup backup --dataset postgres --backup-dir /srv/backups

  # Restore an artifact into the running containers
  krisa-backup restore /opt/krisa-backups/data/krisa-db-21-01-26.tar.gz.gpg`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.krisa-backup.yaml)")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", backup.DefaultBackupDir, "directory holding encrypted artifacts")
	rootCmd.PersistentFlags().IntVar(&retentionDays, "retention-days", 0, "days to keep artifacts, 0 or less disables pruning (unset reads BACKUP_RETENTION_DAYS, then 7)")
	rootCmd.PersistentFlags().StringVar(&datasetFile, "datasets", "", "YAML file with additional dataset descriptors")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	viper.BindPFlag("backup_dir", rootCmd.PersistentFlags().Lookup("backup-dir"))
	viper.BindPFlag("retention_days", rootCmd.PersistentFlags().Lookup("retention-days"))
	viper.BindPFlag("dataset_file", rootCmd.PersistentFlags().Lookup("datasets"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(createVersionCommand())
}

// initConfig reads in the config file and environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".krisa-backup")
		}
	}

	viper.SetEnvPrefix("KRISA_BACKUP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the global flags
func newLogger() (*logging.Logger, error) {
	level := logging.LogLevelNormal
	if verbose {
		level = logging.LogLevelVerbose
	}
	if quiet {
		level = logging.LogLevelQuiet
	}

	return logging.NewLogger(logging.Config{
		Level:   level,
		LogFile: logFile,
	})
}

// validateGlobalFlags rejects contradictory flag combinations
func validateGlobalFlags() error {
	if verbose && quiet {
		return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}
	return nil
}

// buildConfig assembles the pipeline configuration. This is the only place
// that reads the environment: secrets enter here and are passed down as
// plain values.
func buildConfig() (*backup.Config, error) {
	config := &backup.Config{
		Secrets: backup.Secrets{
			BotToken:   os.Getenv("BOT_TOKEN"),
			ChatID:     os.Getenv("ADMIN_ID"),
			Passphrase: os.Getenv("BACKUP_PASSWORD"),
		},
		BackupDir:   viper.GetString("backup_dir"),
		DatasetFile: viper.GetString("dataset_file"),
	}

	// Retention resolves in precedence order: an explicit flag or config
	// file value, then BACKUP_RETENTION_DAYS, then the builtin default.
	// Zero and negative values disable pruning, so set-ness is tracked
	// here instead of overloading zero as "unset".
	switch raw := os.Getenv("BACKUP_RETENTION_DAYS"); {
	case viper.IsSet("retention_days"):
		config.RetentionDays = viper.GetInt("retention_days")
	case raw != "":
		days, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BACKUP_RETENTION_DAYS %q: %w", raw, err)
		}
		config.RetentionDays = days
	default:
		config.RetentionDays = backup.DefaultRetentionDays
	}

	if viper.IsSet("s3.bucket") {
		config.S3 = &backup.S3Config{
			Bucket:    viper.GetString("s3.bucket"),
			Region:    viper.GetString("s3.region"),
			AccessKey: viper.GetString("s3.access_key"),
			SecretKey: viper.GetString("s3.secret_key"),
			Prefix:    viper.GetString("s3.prefix"),
		}
	}

	config.ApplyDefaults()
	return config, nil
}

// buildController wires the pipeline from configuration
func buildController(config *backup.Config, logger *logging.Logger) (*backup.PipelineController, error) {
	runner := backup.NewCommandRunner(logger)
	registry, err := backup.BuildRegistry(config.DatasetFile, runner, logger)
	if err != nil {
		return nil, err
	}

	controller := backup.NewPipelineController(
		config,
		registry,
		backup.NewArchiveCodec(config.BackupDir, logger),
		backup.NewTelegramSink(config.Secrets.BotToken, config.Secrets.ChatID, logger),
		backup.NewRetentionSweeper(logger),
		logger,
	)

	if config.S3 != nil {
		replicator, err := backup.NewS3Replicator(config.S3, logger)
		if err != nil {
			return nil, err
		}
		controller.SetReplicator(replicator)
	}

	return controller, nil
}

// newConsole builds the terminal output helper from the global flags
func newConsole() *console.Console {
	return console.New(noColor)
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("krisa-backup version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}
