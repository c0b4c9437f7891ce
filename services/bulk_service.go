package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sahilchouksey/school-backoffice/model"
)

// BulkAction names an operation applied to every selected program
type BulkAction string

const (
	BulkActionActivate   BulkAction = "activate"
	BulkActionDeactivate BulkAction = "deactivate"
	BulkActionClone      BulkAction = "clone"
	BulkActionDelete     BulkAction = "delete"
)

// MaxBulkItems caps the ids accepted by one bulk request
const MaxBulkItems = 200

// BulkItemResult is the outcome for one id
type BulkItemResult struct {
	ID      uint   `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	NewID   uint   `json:"new_id,omitempty"`
}

// BulkResult aggregates a bulk run. Failures are reported per item, not as an error.
type BulkResult struct {
	RunID        uuid.UUID        `json:"run_id"`
	Action       BulkAction       `json:"action"`
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"`
	Items        []BulkItemResult `json:"items"`
}

// programOperations is the subset of ProgramService a bulk run drives
type programOperations interface {
	SetProgramStatus(ctx context.Context, actor AuthContext, id uint, status model.ProgramStatus) error
	CloneProgram(ctx context.Context, actor AuthContext, id uint) (*model.Program, error)
	DeleteProgram(ctx context.Context, actor AuthContext, id uint) error
}

// BulkService applies program operations to many ids, each in its own transaction
type BulkService struct {
	programs programOperations
	activity *ActivityService
}

// NewBulkService creates a new bulk service
func NewBulkService(programs *ProgramService, activity *ActivityService) *BulkService {
	return &BulkService{programs: programs, activity: activity}
}

// ApplyBulkAction runs action for every id in order. One id failing never stops the rest.
func (s *BulkService) ApplyBulkAction(ctx context.Context, actor AuthContext, action BulkAction, ids []uint) (*BulkResult, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	switch action {
	case BulkActionActivate, BulkActionDeactivate, BulkActionClone, BulkActionDelete:
	default:
		return nil, NewValidationError("action", fmt.Sprintf("unknown bulk action %q", action))
	}
	if len(ids) == 0 {
		return nil, NewValidationError("ids", "at least one id is required")
	}
	if len(ids) > MaxBulkItems {
		return nil, NewValidationError("ids", fmt.Sprintf("at most %d ids per request", MaxBulkItems))
	}

	result := &BulkResult{
		RunID:  uuid.New(),
		Action: action,
		Items:  make([]BulkItemResult, 0, len(ids)),
	}

	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			result.add(BulkItemResult{ID: id, Message: "not processed: request cancelled"})
			continue
		}
		result.add(s.applyOne(ctx, actor, action, id))
	}

	log.Printf("[BULK] run %s %s: %d succeeded, %d failed", result.RunID, action, result.SuccessCount, result.FailureCount)
	s.activity.LogActivity(ctx, actor, "program_bulk_"+string(action),
		fmt.Sprintf("Bulk %s: %d succeeded, %d failed", action, result.SuccessCount, result.FailureCount),
		"programs", 0, map[string]interface{}{
			"run_id":  result.RunID.String(),
			"ids":     ids,
			"success": result.SuccessCount,
			"failure": result.FailureCount,
		})
	return result, nil
}

func (s *BulkService) applyOne(ctx context.Context, actor AuthContext, action BulkAction, id uint) BulkItemResult {
	item := BulkItemResult{ID: id}

	var err error
	switch action {
	case BulkActionActivate:
		err = s.programs.SetProgramStatus(ctx, actor, id, model.ProgramStatusActive)
		item.Message = "activated"
	case BulkActionDeactivate:
		err = s.programs.SetProgramStatus(ctx, actor, id, model.ProgramStatusInactive)
		item.Message = "deactivated"
	case BulkActionClone:
		var clone *model.Program
		clone, err = s.programs.CloneProgram(ctx, actor, id)
		if err == nil {
			item.NewID = clone.ID
			item.Message = "cloned as " + clone.Code
		}
	case BulkActionDelete:
		err = s.programs.DeleteProgram(ctx, actor, id)
		item.Message = "deleted"
	}

	if err != nil {
		item.Message = bulkFailureMessage(err)
		return item
	}
	item.Success = true
	return item
}

func (r *BulkResult) add(item BulkItemResult) {
	if item.Success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
	r.Items = append(r.Items, item)
}

// bulkFailureMessage says why an item failed without leaking database internals
func bulkFailureMessage(err error) string {
	var tf *TransactionFailure
	if errors.As(err, &tf) {
		return tf.Op + " failed"
	}
	return err.Error()
}
