package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File sink constants.
const (
	logFilePermission    = 0o600
	logDirPermission     = 0o750
	DefaultRetentionDays = 30
	logFileTimeLayout    = "2006-01-02_03-04-05PM"
	logFileExt           = ".log"
)

// InitFile initializes the global logger so that records go to stderr and to a
// timestamped file in dir. Log files in dir older than retentionDays are
// removed first. It returns the path of the new log file.
func InitFile(dir, name string, retentionDays int) (string, error) {
	if err := os.MkdirAll(dir, logDirPermission); err != nil {
		return "", fmt.Errorf("failed to create log dir: %w", err)
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if _, err := Prune(dir, retentionDays, time.Now()); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name+"-"+time.Now().Format(logFileTimeLayout)+logFileExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}

	if err := InitWithWriter(io.MultiWriter(os.Stderr, f)); err != nil {
		_ = f.Close()
		return "", err
	}
	logFile = f
	return path, nil
}

// Prune deletes *.log files in dir whose modification time is at least
// retentionDays before now. It returns the removed paths.
func Prune(dir string, retentionDays int, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log dir: %w", err)
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logFileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}
