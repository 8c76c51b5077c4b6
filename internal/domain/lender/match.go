package lender

// Index resolves incoming payloads to existing records. Build one per
// ingestion batch.
//
// Two records that normalize to the same name collide; the later one in the
// input wins. Names are expected to be unique but the database does not
// enforce it.
type Index struct {
	byFlexID map[string]*Record
	byName   map[string]*Record
}

func NewIndex(records []Record) *Index {
	idx := &Index{
		byFlexID: make(map[string]*Record, len(records)),
		byName:   make(map[string]*Record, len(records)),
	}
	for i := range records {
		r := &records[i]
		if r.FlexLenderID != nil && *r.FlexLenderID != "" {
			idx.byFlexID[*r.FlexLenderID] = r
		}
		if key := NormalizeName(r.Name); key != "" {
			idx.byName[key] = r
		}
	}
	return idx
}

// Match returns the record for p, or nil. An external id hit wins over a
// name hit.
func (idx *Index) Match(p Payload) *Record {
	if id := string(p.ExternalID); id != "" {
		if r, ok := idx.byFlexID[id]; ok {
			return r
		}
	}
	if key := NormalizeName(p.Name); key != "" {
		if r, ok := idx.byName[key]; ok {
			return r
		}
	}
	return nil
}
