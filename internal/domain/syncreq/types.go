package syncreq

import (
	"context"
	"errors"
	"time"

	"github.com/naitive/backend/internal/domain/lender"
)

const SourceFlex = "flex"

type RequestType string

const (
	TypeNewLender      RequestType = "new_lender"
	TypeUpdateExisting RequestType = "update_existing"
	TypeMergeConflict  RequestType = "merge_conflict"
)

func (t RequestType) Valid() bool {
	switch t {
	case TypeNewLender, TypeUpdateExisting, TypeMergeConflict:
		return true
	}
	return false
}

type Status string

const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusMerged       Status = "merged"
	StatusAutoApproved Status = "auto_approved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusMerged, StatusAutoApproved:
		return true
	}
	return false
}

var (
	ErrRequestNotFound    = errors.New("request_not_found")
	ErrNotPending         = errors.New("request_not_pending")
	ErrWrongRequestType   = errors.New("invalid_request_type_for_action")
	ErrUnknownRequestType = errors.New("unknown_request_type")
	ErrEmptyBatch         = errors.New("empty_batch")
	ErrMissingLender      = errors.New("missing_existing_lender")
	ErrEmptyMerge         = errors.New("empty_merge_fields")
)

// Request is a proposed change to the lender store awaiting review.
//
// new_lender requests never carry ExistingLenderID or ChangesDiff; the other
// two types always carry ExistingLenderID. Any status other than pending has
// ProcessedBy and ProcessedAt set.
type Request struct {
	ID                 string         `json:"id"`
	SourceSystem       string         `json:"source_system"`
	SourceLenderID     *string        `json:"source_lender_id"`
	Type               RequestType    `json:"request_type"`
	IncomingData       lender.Payload `json:"incoming_data"`
	ExistingLenderID   *string        `json:"existing_lender_id"`
	ExistingLenderName *string        `json:"existing_lender_name"`
	ChangesDiff        lender.Changes `json:"changes_diff"`
	Status             Status         `json:"status"`
	ProcessedBy        *string        `json:"processed_by"`
	ProcessedAt        *time.Time     `json:"processed_at"`
	ProcessingNotes    *string        `json:"processing_notes"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type CreateInput struct {
	SourceSystem       string
	SourceLenderID     *string
	Type               RequestType
	IncomingData       lender.Payload
	ExistingLenderID   *string
	ExistingLenderName *string
	ChangesDiff        lender.Changes
}

// ReplaceInput refreshes a pending request in place when the same lender is
// sent again before review.
type ReplaceInput struct {
	ID             string
	Type           RequestType
	SourceLenderID *string
	IncomingData   lender.Payload
	ChangesDiff    lender.Changes
}

type ResolveInput struct {
	ID          string
	Status      Status
	ProcessedBy string
	Notes       string
	ProcessedAt time.Time
}

type ListFilter struct {
	Status Status
	Type   RequestType
	Limit  int32
	Offset int32
}

type Repository interface {
	Create(ctx context.Context, in CreateInput) (*Request, error)
	// FindPendingByLender returns ErrRequestNotFound when the lender has no
	// open request.
	FindPendingByLender(ctx context.Context, lenderID string) (*Request, error)
	ReplacePending(ctx context.Context, in ReplaceInput) (*Request, error)
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, f ListFilter) ([]Request, error)
	CountPending(ctx context.Context) (map[RequestType]int, error)
}
