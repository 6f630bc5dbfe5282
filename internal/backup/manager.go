package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/accounts/internal/database"
)

const (
	snapshotPrefix = "accounts_"
	snapshotExt    = ".db"
	checksumExt    = ".sha256"
)

// Snapshot describes one verified copy of the account store
type Snapshot struct {
	Path      string
	Checksum  string
	Users     int
	CreatedAt time.Time
}

type Manager struct {
	db            *sql.DB
	backupDir     string
	encryptionKey string
	retentionDays int
	log           zerolog.Logger
	now           func() time.Time
}

// NewManager creates a backup manager writing snapshots to backupDir.
// Snapshots are SQLCipher databases keyed with encryptionKey.
func NewManager(db *sql.DB, backupDir, encryptionKey string, retentionDays int, log zerolog.Logger) (*Manager, error) {
	if encryptionKey == "" {
		return nil, fmt.Errorf("backup encryption key is required")
	}

	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Manager{
		db:            db,
		backupDir:     backupDir,
		encryptionKey: encryptionKey,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "backup").Logger(),
		now:           time.Now,
	}, nil
}

// CreateBackup exports the live database into a new encrypted snapshot and
// writes its checksum next to it.
func (m *Manager) CreateBackup(ctx context.Context) (string, error) {
	name := snapshotPrefix + m.now().UTC().Format("20060102_150405.000000") + snapshotExt
	path := filepath.Join(m.backupDir, name)

	// ATTACH is per connection, so the export must stay on one.
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS snapshot KEY ?", path, m.encryptionKey); err != nil {
		return "", fmt.Errorf("failed to attach snapshot: %w", err)
	}

	_, exportErr := conn.ExecContext(ctx, "SELECT sqlcipher_export('snapshot')")
	if _, err := conn.ExecContext(ctx, "DETACH DATABASE snapshot"); err != nil && exportErr == nil {
		exportErr = err
	}
	if exportErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to export snapshot: %w", exportErr)
	}

	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("failed to set file permissions: %w", err)
	}

	if err := m.createChecksumFile(path); err != nil {
		return "", fmt.Errorf("failed to create checksum: %w", err)
	}

	m.log.Info().Str("path", path).Msg("backup created")
	return path, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (m *Manager) createChecksumFile(path string) error {
	sum, err := fileChecksum(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+checksumExt, []byte(sum), 0600)
}

// VerifyBackup checks the snapshot against its checksum and opens it with
// the key to make sure it is a readable account store.
func (m *Manager) VerifyBackup(ctx context.Context, path string) (*Snapshot, error) {
	stored, err := os.ReadFile(path + checksumExt)
	if err != nil {
		return nil, fmt.Errorf("failed to read checksum file: %w", err)
	}

	current, err := fileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	if current != strings.TrimSpace(string(stored)) {
		return nil, fmt.Errorf("checksum mismatch: backup file may be corrupted")
	}

	cfg := database.DefaultConfig(path, m.encryptionKey)
	cfg.ReadOnly = true
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return nil, fmt.Errorf("failed to check backup integrity: %w", err)
	}
	if integrity != "ok" {
		return nil, fmt.Errorf("backup integrity check failed: %s", integrity)
	}

	snap := &Snapshot{Path: path, Checksum: current}
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM users").Scan(&snap.Users); err != nil {
		return nil, fmt.Errorf("failed to count users in backup: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		snap.CreatedAt = info.ModTime()
	}

	return snap, nil
}

// CleanOldBackups removes snapshots older than the retention period and
// returns how many files were deleted.
func (m *Manager) CleanOldBackups() (int, error) {
	cutoff := m.now().AddDate(0, 0, -m.retentionDays)

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), snapshotPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(m.backupDir, entry.Name())
		if err := os.Remove(path); err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.log.Info().Int("files", deleted).Msg("old backups removed")
	}

	return deleted, nil
}

// StartAutomatedBackups snapshots the database every interval until ctx is done
func (m *Manager) StartAutomatedBackups(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Msg("automated backups started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("automated backups stopped")
			return
		case <-ticker.C:
			if _, err := m.CreateBackup(ctx); err != nil {
				m.log.Error().Err(err).Msg("scheduled backup failed")
			}

			if _, err := m.CleanOldBackups(); err != nil {
				m.log.Error().Err(err).Msg("backup cleanup failed")
			}
		}
	}
}
