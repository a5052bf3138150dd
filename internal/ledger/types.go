package ledger

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of an execution. Transitions are monotonic:
// pending -> running -> {completed, failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TriggerSource identifies where a dispatch originated.
type TriggerSource string

const (
	SourceDashboard TriggerSource = "dashboard"
	SourceWebhook   TriggerSource = "webhook"
	SourceAPI       TriggerSource = "api"
	SourceUnknown   TriggerSource = "unknown"
)

// Target is the repository coordinates an execution operates on.
type Target struct {
	RepositoryID int64  `json:"repository_id"`
	HeadOwner    string `json:"head_owner"`
	HeadRepo     string `json:"head_repo"`
	HeadBranch   string `json:"head_branch"`
	HeadSHA      string `json:"head_sha"`
	BaseOwner    string `json:"base_owner"`
	BaseRepo     string `json:"base_repo"`
}

// Execution is one durable record of a dispatched command. The ID doubles as
// the exchange id handed to the external workflow runner.
type Execution struct {
	ID            string            `json:"id"`
	Command       string            `json:"command"`
	Status        Status            `json:"status"`
	Target        Target            `json:"target"`
	PRNumber      *int              `json:"pr_number,omitempty"`
	Args          map[string]string `json:"args,omitempty"`
	TriggeredBy   string            `json:"triggered_by"`
	TriggerSource TriggerSource     `json:"trigger_source"`
	Result        json.RawMessage   `json:"result,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrDuplicateID       = errors.New("execution id already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)
