package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"krisa-backup/internal/logging"

	"github.com/google/uuid"
)

// Stage identifies where in the pipeline a run currently is
type Stage string

const (
	StageInit       Stage = "INIT"
	StageDumping    Stage = "DUMPING"
	StageArchiving  Stage = "ARCHIVING"
	StageNotifying  Stage = "NOTIFYING"
	StageSweeping   Stage = "SWEEPING"
	StageDecrypting Stage = "DECRYPTING"
	StageRestoring  Stage = "RESTORING"
	StageCleaningUp Stage = "CLEANING_UP"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

// DatasetOutcome records how one dataset fared within a run
type DatasetOutcome struct {
	Dataset     string
	ArchivePath string
	Err         error
}

// BackupResult summarizes one backup run
type BackupResult struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Outcomes []DatasetOutcome
	Swept    int
}

// Failed reports whether any dataset failed during the run
func (r *BackupResult) Failed() bool {
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			return true
		}
	}
	return false
}

// PipelineController orchestrates dump, archive, delivery, and retention
// for backups, and decrypt plus restore for recovery
type PipelineController struct {
	config     *Config
	registry   *Registry
	codec      *ArchiveCodec
	sink       NotificationSink
	sweeper    *RetentionSweeper
	replicator ArtifactReplicator
	logger     *logging.Logger
	now        func() time.Time
}

// NewPipelineController wires a controller from its collaborators. The
// replicator is optional; everything else is required.
func NewPipelineController(
	config *Config,
	registry *Registry,
	codec *ArchiveCodec,
	sink NotificationSink,
	sweeper *RetentionSweeper,
	logger *logging.Logger,
) *PipelineController {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &PipelineController{
		config:   config,
		registry: registry,
		codec:    codec,
		sink:     sink,
		sweeper:  sweeper,
		logger:   logger,
		now:      time.Now,
	}
}

// SetReplicator enables off-site replication of finished artifacts
func (pc *PipelineController) SetReplicator(r ArtifactReplicator) {
	pc.replicator = r
}

// RunBackup executes the full backup pipeline for the selected datasets.
// Validation happens before any filesystem side effect, so a misconfigured
// run leaves the host untouched. Dataset failures are isolated: one dataset
// failing never stops the others, and the result collects every outcome.
func (pc *PipelineController) RunBackup(ctx context.Context, selector string) (*BackupResult, error) {
	if err := pc.config.ValidateForBackup(); err != nil {
		return nil, err
	}
	adapters, err := pc.registry.Select(selector)
	if err != nil {
		return nil, err
	}

	started := pc.now()
	result := &BackupResult{
		RunID:   uuid.New().String(),
		Started: started,
	}
	dateTag := started.Format(DateLayout)

	runLog := pc.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"stage":  StageInit,
	})
	runLog.Infof("Starting backup run for %d dataset(s)", len(adapters))

	workDir := filepath.Join(pc.config.BackupDir, dateTag)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, NewStorageError("failed to create working directory", err).
			WithContext("path", workDir)
	}

	archived := 0
	for _, adapter := range adapters {
		outcome := pc.backupDataset(ctx, adapter, workDir, dateTag)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Err == nil {
			archived++
		}
	}

	// Sweeping after a run with zero artifacts would only shrink the
	// archive set while producing nothing, so it is skipped.
	if archived > 0 {
		pc.sweeper.now = pc.now
		swept, err := pc.sweeper.Sweep(pc.config.BackupDir, pc.config.RetentionDays)
		if err != nil {
			pc.logger.Warnf("Retention sweep failed: %v", err)
		}
		result.Swept = swept
	}

	// The working directory only empties when every dump was archived.
	// A failed dataset leaves its dump behind, and the directory with it.
	if err := os.Remove(workDir); err != nil {
		pc.logger.Debugf("Working directory %s retained: %v", workDir, err)
	}

	result.Duration = pc.now().Sub(started)

	if result.Failed() {
		runLog.WithField("stage", StageFailed).
			Errorf("Backup run finished with failures after %s", result.Duration.Round(time.Millisecond))
	} else {
		runLog.WithField("stage", StageDone).
			Infof("Backup run finished in %s", result.Duration.Round(time.Millisecond))
	}

	return result, nil
}

// backupDataset runs dump, archive, delivery, and replication for one
// dataset. Delivery and replication failures are logged but never fail the
// dataset: the artifact already exists on disk at that point.
func (pc *PipelineController) backupDataset(ctx context.Context, adapter Adapter, workDir, dateTag string) DatasetOutcome {
	dataset := adapter.Dataset()
	outcome := DatasetOutcome{Dataset: dataset.Name}

	dsLog := pc.logger.WithFields(map[string]interface{}{
		"dataset": dataset.Name,
		"stage":   StageDumping,
	})
	dsLog.Info("Dumping dataset")

	dumpPath, err := adapter.Dump(ctx, workDir, dateTag)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	dsLog.WithField("stage", StageArchiving).Info("Archiving dump")
	archivePath, err := pc.codec.Encrypt(dumpPath, pc.config.Secrets.Passphrase, dataset.ArchivePrefix, pc.now())
	if err != nil {
		// The dump stays on disk so the data is still recoverable by hand
		outcome.Err = err
		return outcome
	}
	outcome.ArchivePath = archivePath

	dsLog.WithField("stage", StageNotifying).Info("Delivering artifact")
	caption := fmt.Sprintf("Backup %s %s", dataset.Name, dateTag)
	deliveryErr := pc.sink.Send(ctx, archivePath, caption)
	pc.logger.LogDelivery(pc.sink.GetType(), filepath.Base(archivePath), deliveryErr)

	if pc.replicator != nil {
		if err := pc.replicator.Replicate(ctx, archivePath); err != nil {
			pc.logger.Warnf("Replication of %s failed: %v", filepath.Base(archivePath), err)
		}
	}

	return outcome
}

// RunRestore decrypts an artifact and restores its dumps into the selected
// datasets. A failed decrypt aborts before any dataset is touched. Once
// restoring, a secondary dataset failure degrades to a warning while a
// primary failure fails the run, but neither stops the remaining datasets.
func (pc *PipelineController) RunRestore(ctx context.Context, archivePath, selector string) error {
	if err := pc.config.ValidateForRestore(); err != nil {
		return err
	}
	adapters, err := pc.registry.Select(selector)
	if err != nil {
		return err
	}

	pc.logger.WithField("stage", StageDecrypting).Infof("Decrypting %s", filepath.Base(archivePath))
	dumpPath, err := pc.codec.Decrypt(archivePath, pc.config.Secrets.Passphrase)
	if err != nil {
		return err
	}
	extractDir := filepath.Dir(dumpPath)
	defer func() {
		if err := os.RemoveAll(extractDir); err != nil {
			pc.logger.Warnf("Could not clean up extraction directory %s: %v", extractDir, err)
		}
	}()

	dumps, err := FindDumpFiles(extractDir)
	if err != nil {
		return err
	}

	var firstFatal error
	for _, adapter := range adapters {
		dataset := adapter.Dataset()
		target, err := locateDump(dumps, dataset, len(adapters) == 1)
		if err != nil {
			pc.logger.Warnf("No dump for dataset %s in archive, skipping", dataset.Name)
			continue
		}

		pc.logger.WithFields(map[string]interface{}{
			"dataset": dataset.Name,
			"stage":   StageRestoring,
		}).Info("Restoring dataset")

		if err := adapter.Restore(ctx, target); err != nil {
			if dataset.Secondary {
				pc.logger.Warnf("Restore of secondary dataset %s failed: %v", dataset.Name, err)
				continue
			}
			pc.logger.Errorf("Restore of dataset %s failed: %v", dataset.Name, err)
			if firstFatal == nil {
				firstFatal = err
			}
			continue
		}
		pc.logger.Infof("Restored dataset %s", dataset.Name)
	}

	return firstFatal
}

// locateDump picks the extracted dump belonging to a dataset. When the run
// targets a single dataset, any dump with a matching suffix is accepted so
// artifacts produced elsewhere still restore.
func locateDump(dumps []string, dataset Dataset, single bool) (string, error) {
	namePrefix := dataset.Name + "-backup-"
	for _, dump := range dumps {
		base := filepath.Base(dump)
		if strings.HasPrefix(base, namePrefix) && strings.HasSuffix(base, dataset.DumpSuffix) {
			return dump, nil
		}
	}

	if single {
		for _, dump := range dumps {
			if strings.HasSuffix(dump, dataset.DumpSuffix) {
				return dump, nil
			}
		}
	}

	return "", NewNotFoundError(
		fmt.Sprintf("no dump for dataset %s in archive", dataset.Name), nil)
}
