package backup

import (
	"fmt"
	"strings"
)

// Default pipeline settings
const (
	// DefaultBackupDir is where artifacts accumulate on the host
	DefaultBackupDir = "/opt/krisa-backups/data"
	// DefaultRetentionDays is how long artifacts are kept
	DefaultRetentionDays = 7
)

// Secrets carries the sensitive values the pipeline needs. They are read
// once at the process boundary and passed in here; nothing below this layer
// touches the environment.
type Secrets struct {
	// BotToken authenticates against the Telegram Bot API
	BotToken string
	// ChatID is the Telegram chat receiving artifacts
	ChatID string
	// Passphrase protects the encrypted artifacts
	Passphrase string
}

// Config is the assembled pipeline configuration
type Config struct {
	Secrets Secrets
	// BackupDir is the artifact directory on the host
	BackupDir string
	// RetentionDays bounds artifact age. Zero and negative values disable
	// sweeping; callers assembling a Config decide the default themselves
	// because zero is a meaningful setting, not an absence.
	RetentionDays int
	// DatasetFile optionally adds dataset descriptors beyond the builtins
	DatasetFile string
	// S3, when set, enables off-site artifact replication
	S3 *S3Config
}

// ApplyDefaults fills unset fields with the builtin defaults. RetentionDays
// is deliberately left alone: an explicit zero disables sweeping and must
// survive this call.
func (c *Config) ApplyDefaults() {
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
}

// ValidateForBackup checks that everything a backup run needs is present.
// All missing secrets are reported together so the operator fixes the
// environment in one pass.
func (c *Config) ValidateForBackup() error {
	var missing []string
	if c.Secrets.BotToken == "" {
		missing = append(missing, "bot token")
	}
	if c.Secrets.ChatID == "" {
		missing = append(missing, "chat id")
	}
	if c.Secrets.Passphrase == "" {
		missing = append(missing, "backup passphrase")
	}
	if len(missing) > 0 {
		return NewConfigurationError(
			fmt.Sprintf("missing required secrets: %s", strings.Join(missing, ", ")), nil)
	}

	if c.BackupDir == "" {
		return NewConfigurationError("backup directory is required", nil)
	}

	if c.S3 != nil {
		if err := c.S3.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateForRestore checks the subset of configuration a restore needs
func (c *Config) ValidateForRestore() error {
	if c.Secrets.Passphrase == "" {
		return NewConfigurationError("missing required secrets: backup passphrase", nil)
	}
	return nil
}
