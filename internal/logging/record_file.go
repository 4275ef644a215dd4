package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"growth_quest/internal/models"
	"growth_quest/internal/utils"
)

// ErrRecordFileClosed is returned by WriteBatch after Close
var ErrRecordFileClosed = errors.New("record file is closed")

// RecordFile writes generation records as JSON lines, rotating by size and
// keeping at most maxFiles files.
type RecordFile struct {
	fileTemplate string // e.g. "/var/log/growthquest/generations-%s.jsonl"
	maxSize      int64  // maximum size in bytes before rotation
	maxFiles     int    // maximum number of rotated files to keep

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
	closed      bool
	now         func() time.Time
	logger      *utils.Logger
}

// NewRecordFile opens the first file of the rotation.
// fileTemplate must contain exactly one %s, replaced by a timestamp.
func NewRecordFile(fileTemplate string, maxSize int64, maxFiles int) (*RecordFile, error) {
	if strings.Count(fileTemplate, "%s") != 1 {
		return nil, fmt.Errorf("record file template %q must contain exactly one %%s", fileTemplate)
	}
	if maxFiles <= 0 {
		maxFiles = 1
	}

	rf := &RecordFile{
		fileTemplate: fileTemplate,
		maxSize:      maxSize,
		maxFiles:     maxFiles,
		now:          time.Now,
		logger:       utils.NewLogger("record-file"),
	}
	if err := rf.openFile(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Name implements storage.RecordWriter
func (rf *RecordFile) Name() string {
	return "jsonl"
}

// CurrentFile returns the path being written
func (rf *RecordFile) CurrentFile() string {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.currentFile
}

// newFileName applies a sortable timestamp to the template
func (rf *RecordFile) newFileName() string {
	return fmt.Sprintf(rf.fileTemplate, rf.now().UTC().Format("20060102-150405.000000000"))
}

// openFile opens (or creates) the active file and prepares the buffered writer.
// Callers hold mu, except NewRecordFile.
func (rf *RecordFile) openFile() error {
	name := rf.newFileName()
	file, size, err := createRecordFile(name)
	if err != nil {
		return err
	}
	rf.currentFile = name
	rf.currentSize = size
	rf.file = file
	rf.writer = bufio.NewWriter(file)
	return nil
}

func createRecordFile(name string) (*os.File, int64, error) {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open record file: %w", err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat record file: %w", err)
	}
	return file, fi.Size(), nil
}

// rotateIfNeeded starts a new file when n more bytes would exceed maxSize.
// An empty file is never rotated, so a single oversized line still lands.
// The active file is only replaced once the new one is open, so a failed
// rotation is retried by the next write.
func (rf *RecordFile) rotateIfNeeded(n int) error {
	if rf.maxSize <= 0 || rf.currentSize == 0 || rf.currentSize+int64(n) <= rf.maxSize {
		return nil
	}

	if err := rf.writer.Flush(); err != nil {
		return err
	}

	previous := rf.file
	if err := rf.openFile(); err != nil {
		return err
	}
	if err := previous.Close(); err != nil {
		rf.logger.Warn("Failed to close rotated record file", "error", err)
	}
	rf.cleanupOldFiles()
	return nil
}

// cleanupOldFiles removes the oldest files beyond maxFiles. File names sort
// chronologically because of the timestamp format.
func (rf *RecordFile) cleanupOldFiles() {
	pattern := fmt.Sprintf(rf.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		rf.logger.Warn("Failed to list record files", "pattern", pattern, "error", err)
		return
	}
	sort.Strings(matches)

	excess := len(matches) - rf.maxFiles
	for i := 0; i < excess; i++ {
		if matches[i] == rf.currentFile {
			continue
		}
		if err := os.Remove(matches[i]); err != nil {
			rf.logger.Warn("Failed to remove old record file", "file", matches[i], "error", err)
		}
	}
}

// WriteBatch implements storage.RecordWriter. The batch is flushed to disk
// before it returns.
func (rf *RecordFile) WriteBatch(ctx context.Context, records []models.GenerationRecord) error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.closed {
		return ErrRecordFileClosed
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", records[i].RequestID, err)
		}
		data = append(data, '\n')

		if err := rf.rotateIfNeeded(len(data)); err != nil {
			return fmt.Errorf("failed to rotate record file: %w", err)
		}
		if _, err := rf.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		rf.currentSize += int64(len(data))
	}

	if err := rf.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush record file: %w", err)
	}
	return nil
}

// Close flushes and closes the active file. Safe to call more than once.
func (rf *RecordFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.closed {
		return nil
	}
	rf.closed = true

	flushErr := rf.writer.Flush()
	closeErr := rf.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
