package datascope

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// DepartmentLister loads the whole department hierarchy.
type DepartmentLister interface {
	ListDepartments(ctx context.Context) ([]Department, error)
}

// Snapshot answers GetSubtree from an in-memory Tree. Departments missing from
// the snapshot, and every lookup before the first successful load, fall
// through to next.
type Snapshot struct {
	source DepartmentLister
	next   DepartmentRepository
	logger *slog.Logger
	tree   atomic.Pointer[Tree]
}

// NewSnapshot builds an empty snapshot; call Reload to populate it.
func NewSnapshot(source DepartmentLister, next DepartmentRepository, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshot{source: source, next: next, logger: logger.With(slog.String("component", "datascope.snapshot"))}
}

// Reload replaces the tree with the current department list.
func (s *Snapshot) Reload(ctx context.Context) error {
	depts, err := s.source.ListDepartments(ctx)
	if err != nil {
		return fmt.Errorf("datascope: reload snapshot: %w", err)
	}
	s.tree.Store(NewTree(depts))
	return nil
}

// GetSubtree satisfies DepartmentRepository.
func (s *Snapshot) GetSubtree(ctx context.Context, deptID int64) ([]int64, error) {
	if tree := s.tree.Load(); tree != nil {
		if ids, err := tree.GetSubtree(ctx, deptID); err == nil {
			return ids, nil
		}
	}
	if s.next == nil {
		return nil, fmt.Errorf("department %d: %w", deptID, shared.ErrNotFound)
	}
	return s.next.GetSubtree(ctx, deptID)
}

// Watch reloads the snapshot on every InvalidationChannel message until ctx
// is done.
func (s *Snapshot) Watch(ctx context.Context, client *redis.Client) error {
	sub := client.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("datascope: subscribe %s: %w", InvalidationChannel, err)
	}
	// bumps published before the subscription was confirmed are not replayed
	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("reload department snapshot", slog.Any("error", err))
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := s.Reload(ctx); err != nil {
				s.logger.Warn("reload department snapshot", slog.String("version", msg.Payload), slog.Any("error", err))
				continue
			}
			s.logger.Debug("department snapshot reloaded", slog.String("version", msg.Payload))
		}
	}
}

var _ DepartmentRepository = (*Snapshot)(nil)
