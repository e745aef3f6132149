// Package reliability holds the backup machinery: consistent SQLite
// snapshots, tar.gz archives with checksummed metadata, optional upload to
// S3-compatible storage, and local retention rotation.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/database"
	"github.com/jaylee/stocklab-trader/internal/version"
)

// minBackupsKept is the floor the rotation never goes below, regardless of
// retention age.
const minBackupsKept = 3

// BackupMetadata describes one backup archive.
type BackupMetadata struct {
	Timestamp     time.Time          `json:"timestamp"`
	TraderVersion string             `json:"trader_version"`
	Databases     []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database inside the archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Uploader pushes a finished archive to remote storage. Nil disables remote
// upload; *S3Uploader implements it.
type Uploader interface {
	Upload(ctx context.Context, archivePath string) error
}

// BackupService produces consistent snapshots of the databases. VACUUM INTO
// is the snapshot primitive: it writes a compacted copy without touching the
// live file, so backups are safe while the coordinator is writing.
type BackupService struct {
	databases     []*database.DB
	backupDir     string
	retentionDays int
	uploader      Uploader
	log           zerolog.Logger
}

// NewBackupService creates the service. uploader may be nil for local-only
// backups.
func NewBackupService(
	databases []*database.DB,
	backupDir string,
	retentionDays int,
	uploader Uploader,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		databases:     databases,
		backupDir:     backupDir,
		retentionDays: retentionDays,
		uploader:      uploader,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Run snapshots every database into a dated directory, archives the
// snapshots, uploads the archive when remote storage is configured, and
// rotates old local backups.
func (s *BackupService) Run(ctx context.Context) error {
	started := time.Now()
	stamp := started.UTC().Format("20060102-150405")
	dir := filepath.Join(s.backupDir, stamp)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp:     started.UTC(),
		TraderVersion: version.Version,
		Databases:     make([]DatabaseMetadata, 0, len(s.databases)),
	}

	for _, db := range s.databases {
		snapshotPath := filepath.Join(dir, db.Name()+".db")

		if err := db.VacuumInto(snapshotPath); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}

		info, err := os.Stat(snapshotPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(snapshotPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s snapshot: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  db.Name() + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(dir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}

	archivePath := filepath.Join(dir, "backup-"+stamp+".tar.gz")
	if err := s.createArchive(archivePath, dir, metadata); err != nil {
		return fmt.Errorf("failed to create backup archive: %w", err)
	}

	if s.uploader != nil {
		if err := s.uploader.Upload(ctx, archivePath); err != nil {
			// Local snapshot already exists; remote failure is logged, not
			// fatal.
			s.log.Error().Err(err).Msg("Remote backup upload failed")
		}
	}

	if err := s.rotate(); err != nil {
		s.log.Error().Err(err).Msg("Backup rotation failed")
	}

	s.log.Info().
		Str("dir", dir).
		Dur("elapsed", time.Since(started)).
		Int("databases", len(metadata.Databases)).
		Msg("Backup completed")

	return nil
}

// createArchive tars and gzips the snapshots plus metadata.
func (s *BackupService) createArchive(archivePath, sourceDir string, metadata BackupMetadata) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	names := []string{"backup-metadata.json"}
	for _, db := range metadata.Databases {
		names = append(names, db.Filename)
	}

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	return nil
}

// rotate removes dated backup directories older than the retention window,
// always keeping at least minBackupsKept regardless of age.
func (s *BackupService) rotate() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	var dated []string
	for _, e := range entries {
		if e.IsDir() && looksLikeBackupDir(e.Name()) {
			dated = append(dated, e.Name())
		}
	}
	// Names are timestamp-formatted, so lexical order is chronological.
	sort.Strings(dated)

	if len(dated) <= minBackupsKept {
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	removable := dated[:len(dated)-minBackupsKept]

	for _, name := range removable {
		stamp, err := time.Parse("20060102-150405", name)
		if err != nil || !stamp.Before(cutoff) {
			continue
		}
		path := filepath.Join(s.backupDir, name)
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to remove expired backup")
			continue
		}
		s.log.Info().Str("backup", name).Msg("Removed expired backup")
	}

	return nil
}

func looksLikeBackupDir(name string) bool {
	if len(name) != len("20060102-150405") {
		return false
	}
	_, err := time.Parse("20060102-150405", name)
	return err == nil && !strings.ContainsAny(name, "/\\")
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}

// BackupJob adapts BackupService to the cron scheduler's Job interface.
type BackupJob struct {
	service *BackupService
}

// NewBackupJob wraps the service for cron registration.
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service}
}

// Name implements the scheduler Job interface.
func (j *BackupJob) Name() string { return "backup" }

// Run executes one backup with a generous deadline.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.service.Run(ctx)
}
