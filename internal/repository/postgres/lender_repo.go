package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/naitive/backend/internal/domain/lender"
)

const lenderColumns = `
id, name, email, phone, contact_name, contact_title, website, address, city, state, lender_type,
min_deal_size::text, max_deal_size::text, min_revenue::text, min_ebitda::text, max_ltv::text, typical_rate,
geographic_focus, industries, excluded_industries, loan_types, deal_structures,
requirements_checklist, document_checklist, tier, is_active, notes,
sync_source, flex_lender_id, last_synced_from_flex, created_at, updated_at`

type LenderRepository struct {
	db DBTX
}

func NewLenderRepository(db DBTX) *LenderRepository {
	return &LenderRepository{db: db}
}

func (r *LenderRepository) ListAll(ctx context.Context) ([]lender.Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lenderColumns+` FROM lenders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []lender.Record{}
	for rows.Next() {
		rec, err := scanLender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *LenderRepository) GetByID(ctx context.Context, id string) (*lender.Record, error) {
	return r.getByID(ctx, id, "")
}

func (r *LenderRepository) getByID(ctx context.Context, id, lock string) (*lender.Record, error) {
	rec, err := scanLender(r.db.QueryRow(ctx, `SELECT `+lenderColumns+` FROM lenders WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lender.ErrNotFound
	}
	return rec, err
}

func (r *LenderRepository) Create(ctx context.Context, in lender.CreateInput) (*lender.Record, error) {
	q := `
INSERT INTO lenders (
  name, email, phone, contact_name, contact_title, website, address, city, state, lender_type,
  min_deal_size, max_deal_size, min_revenue, min_ebitda, max_ltv, typical_rate,
  geographic_focus, industries, excluded_industries, loan_types, deal_structures,
  requirements_checklist, document_checklist, tier, is_active, notes,
  sync_source, flex_lender_id, last_synced_from_flex
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
  $11::numeric, $12::numeric, $13::numeric, $14::numeric, $15::numeric, $16,
  $17, $18, $19, $20, $21,
  $22, $23, $24, $25, $26,
  COALESCE($27, 'naitive'), $28, $29
)
RETURNING ` + lenderColumns
	args := append([]any{in.Name}, fieldArgs(in.Fields)...)
	args = append(args, nullIfEmpty(string(in.SyncSource)), in.FlexLenderID, in.LastSyncedFromFlex)

	rec, err := scanLender(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if isUniqueViolation(err, "lenders_flex_lender_id_key") {
			return nil, lender.ErrDuplicateFlexID
		}
		return nil, err
	}
	return rec, nil
}

// ApplySync overwrites the comparable fields and refreshes flex provenance.
// sync_source is left as is.
func (r *LenderRepository) ApplySync(ctx context.Context, in lender.SyncUpdate) error {
	q := `
UPDATE lenders SET
  email = $2, phone = $3, contact_name = $4, contact_title = $5, website = $6,
  address = $7, city = $8, state = $9, lender_type = $10,
  min_deal_size = $11::numeric, max_deal_size = $12::numeric, min_revenue = $13::numeric,
  min_ebitda = $14::numeric, max_ltv = $15::numeric, typical_rate = $16,
  geographic_focus = $17, industries = $18, excluded_industries = $19, loan_types = $20,
  deal_structures = $21, requirements_checklist = $22, document_checklist = $23,
  tier = $24, is_active = $25, notes = $26,
  flex_lender_id = COALESCE($27, flex_lender_id),
  last_synced_from_flex = $28,
  updated_at = NOW()
WHERE id = $1
`
	args := append([]any{in.LenderID}, fieldArgs(in.Fields)...)
	args = append(args, in.FlexLenderID, in.SyncedAt)

	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err, "lenders_flex_lender_id_key") {
			return lender.ErrDuplicateFlexID
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return lender.ErrNotFound
	}
	return nil
}

func fieldArgs(f lender.Fields) []any {
	return []any{
		f.Email, f.Phone, f.ContactName, f.ContactTitle, f.Website,
		f.Address, f.City, f.State, f.LenderType,
		decText(f.MinDealSize), decText(f.MaxDealSize), decText(f.MinRevenue),
		decText(f.MinEBITDA), decText(f.MaxLTV), f.TypicalRate,
		f.GeographicFocus, f.Industries, f.ExcludedIndustries, f.LoanTypes,
		f.DealStructures, f.RequirementsChecklist, f.DocumentChecklist,
		f.Tier, f.IsActive, f.Notes,
	}
}

func scanLender(row rowScanner) (*lender.Record, error) {
	out := &lender.Record{}
	var (
		minDeal, maxDeal, minRevenue, minEBITDA, maxLTV *string
		source                                          *string
	)
	err := row.Scan(
		&out.ID, &out.Name, &out.Email, &out.Phone, &out.ContactName, &out.ContactTitle,
		&out.Website, &out.Address, &out.City, &out.State, &out.LenderType,
		&minDeal, &maxDeal, &minRevenue, &minEBITDA, &maxLTV, &out.TypicalRate,
		&out.GeographicFocus, &out.Industries, &out.ExcludedIndustries, &out.LoanTypes, &out.DealStructures,
		&out.RequirementsChecklist, &out.DocumentChecklist, &out.Tier, &out.IsActive, &out.Notes,
		&source, &out.FlexLenderID, &out.LastSyncedFromFlex, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if source != nil {
		out.SyncSource = lender.SyncSource(*source)
	}
	for _, p := range []struct {
		raw *string
		dst **decimal.Decimal
	}{
		{minDeal, &out.MinDealSize},
		{maxDeal, &out.MaxDealSize},
		{minRevenue, &out.MinRevenue},
		{minEBITDA, &out.MinEBITDA},
		{maxLTV, &out.MaxLTV},
	} {
		if p.raw == nil {
			continue
		}
		d, err := decimal.NewFromString(*p.raw)
		if err != nil {
			return nil, fmt.Errorf("lender %s: %w", out.ID, err)
		}
		*p.dst = &d
	}
	return out, nil
}

func decText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
