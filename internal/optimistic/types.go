package optimistic

import (
	"time"

	"github.com/xelth-com/colocacion/internal/models"
)

// State of an optimistic update. staged moves to exactly one of the others.
type State string

const (
	StateStaged     State = "staged"
	StateConfirmed  State = "confirmed"
	StateRolledBack State = "rolledback"
)

// Record is the ephemeral trace of one staged mutation
type Record struct {
	ID             string           `json:"id"`
	ProductID      int64            `json:"productId"`
	Barcode        string           `json:"barcode"`
	ActorID        string           `json:"actorId"`
	DeviceID       string           `json:"deviceId"`
	Original       models.Placement `json:"originalState"`
	Proposed       models.Placement `json:"proposedState"`
	Confirmed      bool             `json:"confirmed"`
	RolledBack     bool             `json:"rolledBack"`
	RollbackReason string           `json:"rollbackReason,omitempty"`
	LockToken      string           `json:"lockToken"`
	CreatedAt      time.Time        `json:"createdAt"`
	ExpiresAt      time.Time        `json:"expiresAt"`
}

func (r Record) State() State {
	switch {
	case r.Confirmed:
		return StateConfirmed
	case r.RolledBack:
		return StateRolledBack
	default:
		return StateStaged
	}
}

// Operation is one entry of an actor+device undo/redo stack, newest first
type Operation struct {
	ID        string           `json:"id"`
	UpdateID  string           `json:"updateId"`
	ProductID int64            `json:"productId"`
	Barcode   string           `json:"barcode"`
	Before    models.Placement `json:"beforeState"`
	After     models.Placement `json:"afterState"`
	Timestamp time.Time        `json:"timestamp"`
	CanUndo   bool             `json:"canUndo"`
	CanRedo   bool             `json:"canRedo"`
}

// Outcome is returned by Undo and Redo. Success is false when nothing was eligible.
type Outcome struct {
	Success   bool            `json:"success"`
	Operation *Operation      `json:"operation,omitempty"`
	Product   *models.Product `json:"product,omitempty"`
}
