package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"venuebook/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "venuebook_"

type BackupService struct {
	db     *DB
	config config.BackupConfig
	every  time.Duration
	logger zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, every time.Duration, logger *zerolog.Logger) *BackupService {
	if every <= 0 {
		every = 24 * time.Hour
	}
	return &BackupService{
		db:     db,
		config: cfg,
		every:  every,
		logger: logger.With().Str("component", "backup").Logger(),
	}
}

// Start blocks until ctx is done, taking a snapshot every interval.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.every).Msg("Backup service started")

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled backup failed")
	}
	if _, err := s.CleanupOldBackups(time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("Backup cleanup failed")
	}
}

// PerformBackup writes a consistent snapshot with VACUUM INTO, which is safe
// while the WAL database is being written to.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(s.config.StoragePath, name)

	s.logger.Info().Str("path", path).Msg("Performing database backup")
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}

	s.logger.Info().Str("path", path).Msg("Backup completed successfully")
	return path, nil
}

// CleanupOldBackups removes snapshots older than the retention window and
// returns how many were deleted.
func (s *BackupService) CleanupOldBackups(now time.Time) (int, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := now.AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete backup")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
