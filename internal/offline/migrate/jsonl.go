// Package migrate moves the pending operation queue between devices.
//
// A queue export is a JSONL file with one record per operation, oldest
// first. Image uploads carry their bytes inline so the file is
// self-contained; importing writes them into the target queue's
// attachment directory.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// Record is one line of a queue export.
type Record struct {
	Op         schema.PendingOperation `json:"op"`
	Attachment []byte                  `json:"attachment,omitempty"`
}

// Source is a queue that can be exported.
type Source interface {
	Pending(ctx context.Context) ([]schema.PendingOperation, error)
	ReadAttachment(op schema.PendingOperation) ([]byte, error)
}

// Target is a queue that accepts imported operations.
type Target interface {
	Import(ctx context.Context, op schema.PendingOperation, attachment []byte) error
}

// ExportOptions contains configuration for an export to disk
type ExportOptions struct {
	ToJSONL string // Output JSONL file path
	Backup  bool   // Keep a copy of an existing file at the output path
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	FromJSONL string // Input JSONL file path
	DryRun    bool   // Validate without enqueueing
}

// Result contains statistics about an export or import
type Result struct {
	Operations    int
	Attachments   int
	Skipped       int
	BackupCreated string
	Errors        []string
}

// ExportQueue writes every pending operation to w as JSONL. Operations
// whose attachment cannot be read are skipped and reported.
func ExportQueue(ctx context.Context, src Source, w io.Writer) (*Result, error) {
	ops, err := src.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	result := &Result{}
	enc := json.NewEncoder(w)
	for _, op := range ops {
		rec := Record{Op: op}
		if op.AttachmentPath != nil && *op.AttachmentPath != "" {
			data, err := src.ReadAttachment(op)
			if err != nil {
				result.Skipped++
				result.Errors = append(result.Errors,
					fmt.Sprintf("operation %d (%s %s): %v", op.Seq, op.Kind, op.EntityID, err))
				continue
			}
			rec.Attachment = data
			result.Attachments++
		}
		// Paths are local to this device
		rec.Op.AttachmentPath = nil

		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to write operation %d: %w", op.Seq, err)
		}
		result.Operations++
	}
	return result, nil
}

// ReadJSONL parses a queue export.
func ReadJSONL(r io.Reader) ([]Record, error) {
	var records []Record
	decoder := json.NewDecoder(r)
	for line := 1; ; line++ {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Validate checks that a record can be replayed.
func (r Record) Validate() error {
	op := r.Op
	op.AttachmentPath = nil
	if len(r.Attachment) > 0 {
		inline := "inline"
		op.AttachmentPath = &inline
	}
	if err := op.Validate(); err != nil {
		return err
	}
	if op.Kind != schema.OpUploadImage && len(r.Attachment) > 0 {
		return fmt.Errorf("%s does not take an attachment", op.Kind)
	}
	return nil
}

// ImportQueue appends the operations in r to dst in file order. Invalid
// records are skipped and reported; a failed enqueue stops the import.
func ImportQueue(ctx context.Context, dst Target, r io.Reader, dryRun bool) (*Result, error) {
	records, err := ReadJSONL(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	result := &Result{}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i+1, err))
			continue
		}
		if !dryRun {
			if err := dst.Import(ctx, rec.Op, rec.Attachment); err != nil {
				return result, fmt.Errorf("failed to import record %d: %w", i+1, err)
			}
		}
		result.Operations++
		if len(rec.Attachment) > 0 {
			result.Attachments++
		}
	}
	return result, nil
}

// Export writes the queue to opts.ToJSONL atomically.
func Export(ctx context.Context, src Source, opts ExportOptions) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(opts.ToJSONL), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var backup string
	if opts.Backup {
		if existing, err := os.ReadFile(opts.ToJSONL); err == nil {
			backup = opts.ToJSONL + ".backup." + time.Now().Format("20060102-150405")
			if err := os.WriteFile(backup, existing, 0600); err != nil {
				return nil, fmt.Errorf("failed to create backup: %w", err)
			}
		}
	}

	// Write atomically via temp file
	tmpPath := opts.ToJSONL + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	result, err := ExportQueue(ctx, src, file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, opts.ToJSONL); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	result.BackupCreated = backup
	return result, nil
}

// Import reads opts.FromJSONL into dst.
func Import(ctx context.Context, dst Target, opts ImportOptions) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(opts.FromJSONL)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	return ImportQueue(ctx, dst, file, opts.DryRun)
}
