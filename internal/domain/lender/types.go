package lender

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type SyncSource string

const (
	SourceNaitive SyncSource = "naitive"
	SourceFlex    SyncSource = "flex"
)

// LocallyOwned reports whether the record was authored in this application
// rather than created by a sync. An absent source counts as local.
func (s SyncSource) LocallyOwned() bool {
	return s == "" || s == SourceNaitive
}

var (
	ErrNameRequired    = errors.New("name_required")
	ErrNotFound        = errors.New("lender_not_found")
	ErrDuplicateFlexID = errors.New("duplicate_flex_lender_id")
	ErrUnknownField    = errors.New("unknown_field")
	ErrInvalidPayload  = errors.New("invalid_payload")
)

// Fields is the comparable part of a lender record. A nil pointer or nil
// slice means the value is absent.
type Fields struct {
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	ContactName  *string `json:"contact_name"`
	ContactTitle *string `json:"contact_title"`
	Website      *string `json:"website"`
	Address      *string `json:"address"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	LenderType   *string `json:"lender_type"`

	MinDealSize *decimal.Decimal `json:"min_deal_size"`
	MaxDealSize *decimal.Decimal `json:"max_deal_size"`
	MinRevenue  *decimal.Decimal `json:"min_revenue"`
	MinEBITDA   *decimal.Decimal `json:"min_ebitda"`
	MaxLTV      *decimal.Decimal `json:"max_ltv"`
	TypicalRate *string          `json:"typical_rate"`

	GeographicFocus       []string `json:"geographic_focus"`
	Industries            []string `json:"industries"`
	ExcludedIndustries    []string `json:"excluded_industries"`
	LoanTypes             []string `json:"loan_types"`
	DealStructures        []string `json:"deal_structures"`
	RequirementsChecklist []string `json:"requirements_checklist"`
	DocumentChecklist     []string `json:"document_checklist"`

	Tier     *string `json:"tier"`
	IsActive *bool   `json:"is_active"`
	Notes    *string `json:"notes"`
}

type Record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Fields
	SyncSource         SyncSource `json:"sync_source"`
	FlexLenderID       *string    `json:"flex_lender_id"`
	LastSyncedFromFlex *time.Time `json:"last_synced_from_flex"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type CreateInput struct {
	Name               string
	Fields             Fields
	SyncSource         SyncSource
	FlexLenderID       *string
	LastSyncedFromFlex *time.Time
}

// SyncUpdate overwrites the comparable fields of an existing record and
// refreshes its flex provenance. A nil FlexLenderID keeps the stored one.
type SyncUpdate struct {
	LenderID     string
	Fields       Fields
	FlexLenderID *string
	SyncedAt     time.Time
}

type Repository interface {
	ListAll(ctx context.Context) ([]Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, in CreateInput) (*Record, error)
	ApplySync(ctx context.Context, in SyncUpdate) error
}
