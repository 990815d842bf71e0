package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuenv-dev/taskcache/internal/cacheerr"
	"github.com/cuenv-dev/taskcache/internal/fsx"
	"github.com/cuenv-dev/taskcache/internal/wal"
)

// Transaction groups storage mutations so recovery replays them as a unit:
// committing appends every queued operation to the WAL first and only then
// executes them against the backend; rolling back just drops the queue,
// since nothing was logged yet.
type Transaction struct {
	mu  sync.Mutex
	ops []wal.Operation
}

// BeginTransaction returns an empty Transaction ready to accumulate ops.
func (b *Backend) BeginTransaction() *Transaction {
	return &Transaction{}
}

// AddWrite queues a data+metadata write to tx.
func (tx *Transaction) AddWrite(key, dataPath, metaPath string, data, meta []byte, contentHash string) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.ops = append(tx.ops, wal.Operation{
		Kind: wal.OpWrite,
		Write: &wal.WriteOp{
			Key:         key,
			DataPath:    dataPath,
			MetaPath:    metaPath,
			Data:        data,
			Meta:        meta,
			ContentHash: contentHash,
		},
	})
}

// AddDelete queues removal of key's data and metadata files to tx.
func (tx *Transaction) AddDelete(key, dataPath, metaPath string) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.ops = append(tx.ops, wal.Operation{
		Kind:   wal.OpDelete,
		Delete: &wal.DeleteOp{Key: key, DataPath: dataPath, MetaPath: metaPath},
	})
}

// Rollback drops every queued op in tx without touching disk or the WAL.
func (tx *Transaction) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.ops = nil
}

// CommitTransaction appends tx's queued operations to log in order, then
// executes each one against the backend. A crash between the WAL append
// and execution is recovered by Recover re-applying the same operation.
func (b *Backend) CommitTransaction(ctx context.Context, log *wal.WAL, tx *Transaction) error {
	tx.mu.Lock()
	ops := append([]wal.Operation(nil), tx.ops...)
	tx.mu.Unlock()

	for _, op := range ops {
		if _, err := log.Append(op); err != nil {
			return fmt.Errorf("storage: append to wal: %w", err)
		}
	}

	for _, op := range ops {
		if err := b.execute(ctx, op); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backend) execute(ctx context.Context, op wal.Operation) error {
	switch op.Kind {
	case wal.OpWrite:
		return b.executeWrite(ctx, op.Write)
	case wal.OpDelete:
		return b.executeDelete(op.Delete)
	case wal.OpCheckpoint:
		return nil
	default:
		return fmt.Errorf("storage: unknown wal op kind %d", op.Kind)
	}
}

func (b *Backend) executeWrite(ctx context.Context, w *wal.WriteOp) error {
	if w == nil {
		return fmt.Errorf("storage: write op missing payload")
	}

	if err := b.Write(ctx, w.DataPath, w.Data); err != nil {
		return err
	}

	return b.Write(ctx, w.MetaPath, w.Meta)
}

func (b *Backend) executeDelete(d *wal.DeleteOp) error {
	if d == nil {
		return fmt.Errorf("storage: delete op missing payload")
	}

	if err := b.fs.Remove(d.DataPath); err != nil && !fsx.IsNotExist(err) {
		return cacheerr.IO("storage_delete", d.DataPath, err)
	}

	if err := b.fs.Remove(d.MetaPath); err != nil && !fsx.IsNotExist(err) {
		return cacheerr.IO("storage_delete", d.MetaPath, err)
	}

	return nil
}

// Recover replays log at startup (the C3 recovery procedure): WriteOps are
// re-applied only if the data file is missing or its content hash differs
// from what was recorded (so an already-applied write is a no-op);
// DeleteOps are re-applied unconditionally, since removal is idempotent.
// wal.Replay already stops at the first torn (CRC-invalid) entry, so
// anything after a crash mid-append is treated as never logged. Once replay
// succeeds, a Checkpoint entry is appended to log.
func (b *Backend) Recover(ctx context.Context, log *wal.WAL) error {
	err := log.Replay(func(_ uint64, op wal.Operation) error {
		switch op.Kind {
		case wal.OpWrite:
			return b.recoverWrite(ctx, op.Write)
		case wal.OpDelete:
			return b.executeDelete(op.Delete)
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	_, err = log.Append(wal.Operation{Kind: wal.OpCheckpoint})

	return err
}

func (b *Backend) recoverWrite(ctx context.Context, w *wal.WriteOp) error {
	if w == nil {
		return nil
	}

	existing, err := b.Read(ctx, w.DataPath)
	if err == nil && ContentHash(existing) == w.ContentHash {
		return nil
	}

	return b.executeWrite(ctx, w)
}
