package cluster

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"photokeep/internal/apierrors"
)

// These cases exercise validation that short-circuits before touching any
// repository, so a service with nil collaborators is safe to call directly.
func TestRenameRejectsEmptyName(t *testing.T) {
	s := &service{}
	err := s.Rename(context.Background(), uuid.New(), "")
	if apierrors.Classify(err) != apierrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeRejectsEmptySourceList(t *testing.T) {
	s := &service{}
	_, err := s.Merge(context.Background(), uuid.New(), nil)
	if apierrors.Classify(err) != apierrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeRejectsTargetAsSource(t *testing.T) {
	s := &service{}
	id := uuid.New()
	_, err := s.Merge(context.Background(), id, []uuid.UUID{id})
	if apierrors.Classify(err) != apierrors.KindValidation {
		t.Fatalf("expected validation error for self-merge, got %v", err)
	}
}

func TestSplitRejectsEmptyPartitions(t *testing.T) {
	s := &service{}
	_, err := s.Split(context.Background(), uuid.New(), nil)
	if apierrors.Classify(err) != apierrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
