package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

const maxLogSize = 10 << 20

// setupLogFile mirrors the standard logger into debug.log in
// dir. Failure to open the file only warns.
func setupLogFile(dir string) {
	path := filepath.Join(dir, "debug.log")
	truncateLogFile(path, maxLogSize)

	f, err := os.OpenFile(
		path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		log.Printf("warning: cannot open log file: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
}

// truncateLogFile empties the file at path once it exceeds limit.
// Symlinks are left alone.
func truncateLogFile(path string, limit int64) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return
	}
	if info.Size() > limit {
		if err := os.Truncate(path, 0); err != nil {
			log.Printf("warning: truncating log file: %v", err)
		}
	}
}
