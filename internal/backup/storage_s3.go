package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"krisa-backup/internal/logging"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ArtifactReplicator copies a finished artifact to off-site storage.
// Replication is best effort: the local artifact and its delivery channel
// remain the primary copies.
type ArtifactReplicator interface {
	Replicate(ctx context.Context, artifactPath string) error
	GetType() string
}

// S3Config holds the settings for off-site artifact replication
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// Validate checks that the required S3 settings are present
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return NewValidationError("S3 bucket is required", nil)
	}
	if c.Region == "" {
		return NewValidationError("S3 region is required", nil)
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return NewValidationError("S3 credentials are required", nil)
	}
	return nil
}

// S3Replicator uploads encrypted artifacts to an S3 bucket
type S3Replicator struct {
	client *s3.S3
	bucket string
	prefix string
	logger *logging.Logger
}

// NewS3Replicator creates a replicator from validated configuration
func NewS3Replicator(config *S3Config, logger *logging.Logger) (*S3Replicator, error) {
	if config == nil {
		return nil, NewValidationError("S3 replication configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		),
	})
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "backups"
	}

	return &S3Replicator{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

// GetType returns the replicator kind
func (sr *S3Replicator) GetType() string {
	return "s3"
}

// Replicate uploads the artifact under the configured prefix, keyed by its
// filename so the bucket mirrors the local artifact directory
func (sr *S3Replicator) Replicate(ctx context.Context, artifactPath string) error {
	file, err := os.Open(artifactPath)
	if err != nil {
		return NewNotFoundError("artifact file not found", err).WithContext("path", artifactPath)
	}
	defer file.Close()

	key := objectKey(sr.prefix, artifactPath)
	_, err = sr.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sr.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return NewStorageError(
			fmt.Sprintf("failed to upload artifact to s3://%s/%s", sr.bucket, key), err)
	}

	sr.logger.Infof("Replicated artifact to s3://%s/%s", sr.bucket, key)
	return nil
}

// objectKey joins the replication prefix with the artifact's base name
func objectKey(prefix, artifactPath string) string {
	return path.Join(prefix, filepath.Base(artifactPath))
}
