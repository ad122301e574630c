package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ldi/timebox/internal/config"
	"github.com/ldi/timebox/internal/db"
)

const gitignoreContent = "timebox.db*\nlogs/\n"

func runInit(cfg *config.Config, out io.Writer) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", cfg.DataDir, err)
	}
	fmt.Fprintf(out, "✓ Created %s/ directory\n", cfg.DataDir)

	gitignorePath := filepath.Join(cfg.DataDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Fprintf(out, "✓ Created %s\n", gitignorePath)

	configPath := filepath.Join(cfg.DataDir, config.FileName)
	written, err := config.WriteDefault(configPath)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(out, "✓ Wrote default config to %s\n", configPath)
	} else {
		fmt.Fprintf(out, "✓ Kept existing config at %s\n", configPath)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Fprintf(out, "✓ Initialized database at %s\n", cfg.DBPath)

	if _, err := os.Stat(cfg.SnapshotPath); err == nil {
		if err := database.ImportSnapshot(ctx, cfg.SnapshotPath); err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Fprintf(out, "✓ Imported snapshot from %s\n", cfg.SnapshotPath)
	}

	fmt.Fprintln(out, "✓ timebox initialized successfully")
	return nil
}
