package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteConfig writes ac to path, creating the directory as needed. An existing
// file is backed up first.
func WriteConfig(path string, ac AppConfig) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := BackupFile(path); err != nil {
			return fmt.Errorf("failed to back up existing config: %w", err)
		}
	}

	// Rendered by hand so the file carries comments.
	var sb strings.Builder
	sb.WriteString("# twittersphere configuration\n")
	sb.WriteString(fmt.Sprintf("database_path: %q\n", ac.DatabasePath))
	if strings.TrimSpace(ac.LogFile) != "" {
		sb.WriteString(fmt.Sprintf("log_file: %q\n", ac.LogFile))
	} else {
		sb.WriteString("# log_file: \"~/.local/state/twittersphere/prepare.log\"\n")
	}
	if strings.TrimSpace(ac.MetricsAddr) != "" {
		sb.WriteString(fmt.Sprintf("metrics_addr: %q\n", ac.MetricsAddr))
	} else {
		sb.WriteString("# metrics_addr: \":9090\"\n")
	}

	sb.WriteString("prepare:\n")
	sb.WriteString(fmt.Sprintf("  workers: %d\n", ac.Prepare.Workers))
	sb.WriteString(fmt.Sprintf("  batch_size: %s\n", ac.Prepare.BatchSize))
	sb.WriteString(fmt.Sprintf("  staging_size: %s\n", ac.Prepare.StagingSize))
	sb.WriteString(fmt.Sprintf("  on_error: %s  # abort | skip\n", ac.Prepare.OnError))

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// BackupFile creates a backup of the specified file with a timestamp
func BackupFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ts := time.Now().Format("20060102-150405")
	bak := path + ".bak-" + ts
	return os.WriteFile(bak, b, 0o644)
}
