package lender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type field struct {
	name   string
	get    func(f *Fields) any
	assign func(dst, src *Fields)
}

// comparableFields excludes identity and provenance columns (id, name,
// sync_source, flex_lender_id, timestamps).
var comparableFields = []field{
	{"email", func(f *Fields) any { return str(f.Email) }, func(d, s *Fields) { d.Email = s.Email }},
	{"phone", func(f *Fields) any { return str(f.Phone) }, func(d, s *Fields) { d.Phone = s.Phone }},
	{"contact_name", func(f *Fields) any { return str(f.ContactName) }, func(d, s *Fields) { d.ContactName = s.ContactName }},
	{"contact_title", func(f *Fields) any { return str(f.ContactTitle) }, func(d, s *Fields) { d.ContactTitle = s.ContactTitle }},
	{"website", func(f *Fields) any { return str(f.Website) }, func(d, s *Fields) { d.Website = s.Website }},
	{"address", func(f *Fields) any { return str(f.Address) }, func(d, s *Fields) { d.Address = s.Address }},
	{"city", func(f *Fields) any { return str(f.City) }, func(d, s *Fields) { d.City = s.City }},
	{"state", func(f *Fields) any { return str(f.State) }, func(d, s *Fields) { d.State = s.State }},
	{"lender_type", func(f *Fields) any { return str(f.LenderType) }, func(d, s *Fields) { d.LenderType = s.LenderType }},
	{"min_deal_size", func(f *Fields) any { return dec(f.MinDealSize) }, func(d, s *Fields) { d.MinDealSize = s.MinDealSize }},
	{"max_deal_size", func(f *Fields) any { return dec(f.MaxDealSize) }, func(d, s *Fields) { d.MaxDealSize = s.MaxDealSize }},
	{"min_revenue", func(f *Fields) any { return dec(f.MinRevenue) }, func(d, s *Fields) { d.MinRevenue = s.MinRevenue }},
	{"min_ebitda", func(f *Fields) any { return dec(f.MinEBITDA) }, func(d, s *Fields) { d.MinEBITDA = s.MinEBITDA }},
	{"max_ltv", func(f *Fields) any { return dec(f.MaxLTV) }, func(d, s *Fields) { d.MaxLTV = s.MaxLTV }},
	{"typical_rate", func(f *Fields) any { return str(f.TypicalRate) }, func(d, s *Fields) { d.TypicalRate = s.TypicalRate }},
	{"geographic_focus", func(f *Fields) any { return list(f.GeographicFocus) }, func(d, s *Fields) { d.GeographicFocus = s.GeographicFocus }},
	{"industries", func(f *Fields) any { return list(f.Industries) }, func(d, s *Fields) { d.Industries = s.Industries }},
	{"excluded_industries", func(f *Fields) any { return list(f.ExcludedIndustries) }, func(d, s *Fields) { d.ExcludedIndustries = s.ExcludedIndustries }},
	{"loan_types", func(f *Fields) any { return list(f.LoanTypes) }, func(d, s *Fields) { d.LoanTypes = s.LoanTypes }},
	{"deal_structures", func(f *Fields) any { return list(f.DealStructures) }, func(d, s *Fields) { d.DealStructures = s.DealStructures }},
	{"requirements_checklist", func(f *Fields) any { return list(f.RequirementsChecklist) }, func(d, s *Fields) { d.RequirementsChecklist = s.RequirementsChecklist }},
	{"document_checklist", func(f *Fields) any { return list(f.DocumentChecklist) }, func(d, s *Fields) { d.DocumentChecklist = s.DocumentChecklist }},
	{"tier", func(f *Fields) any { return str(f.Tier) }, func(d, s *Fields) { d.Tier = s.Tier }},
	{"is_active", func(f *Fields) any { return flag(f.IsActive) }, func(d, s *Fields) { d.IsActive = s.IsActive }},
	{"notes", func(f *Fields) any { return str(f.Notes) }, func(d, s *Fields) { d.Notes = s.Notes }},
}

var fieldsByName = func() map[string]field {
	out := make(map[string]field, len(comparableFields))
	for _, f := range comparableFields {
		out[f.name] = f
	}
	return out
}()

// FieldNames returns the comparable field names in their fixed order.
func FieldNames() []string {
	out := make([]string, 0, len(comparableFields))
	for _, f := range comparableFields {
		out = append(out, f.name)
	}
	return out
}

// ApplyPatch overwrites only the fields named in patch. Every key must be a
// comparable field; values are decoded with the same rules as a payload.
func ApplyPatch(dst *Fields, patch map[string]json.RawMessage) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := fieldsByName[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	var src Fields
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	if err := d.Decode(&src); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for _, k := range keys {
		fieldsByName[k].assign(dst, &src)
	}
	return nil
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func dec(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return *p
}

func list(v []string) any {
	if v == nil {
		return nil
	}
	return v
}

func flag(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
