package datasets

import "github.com/MarcoPoloResearchLab/idcards/internal/cards"

// fieldAliases lists, per canonical card field, the source columns consulted in order.
var fieldAliases = []struct {
	field   string
	sources []string
}{
	{field: "full_name", sources: []string{"full_name", "name", "student_name", "fullName"}},
	{field: "prn", sources: []string{"prn", "student_id", "id", "rollNo", "roll_no"}},
	{field: "enrollment_no", sources: []string{"enrollment_no", "enrollmentNo", "enroll_no"}},
	{field: "batch", sources: []string{"batch", "year", "class"}},
	{field: "university", sources: []string{"university", "institution"}},
	{field: "department", sources: []string{"department", "dept", "department_name"}},
	{field: "birthdate", sources: []string{"birthdate", "dob", "date_of_birth"}},
	{field: "address", sources: []string{"address", "location"}},
	{field: "mobile", sources: []string{"mobile", "phone", "contact"}},
	{field: "photo", sources: []string{"photo_url", "photo", "photo_file"}},
	{field: "photo_url", sources: []string{"photo_url", "photo", "photo_file"}},
}

// NormalizeStudent maps common column spellings onto the card field names.
// Source columns are preserved; the qr field defaults to the resolved prn.
func NormalizeStudent(row cards.Record) cards.Record {
	normalized := row.Clone()
	for _, alias := range fieldAliases {
		if value, ok := row.FirstOf(alias.sources...); ok {
			normalized[alias.field] = value
		}
	}
	if _, ok := normalized.Lookup("qr"); !ok {
		if prn, found := normalized.Lookup("prn"); found {
			normalized["qr"] = prn
		}
	}
	return normalized
}

// NormalizeRows applies NormalizeStudent to every row.
func NormalizeRows(rows []cards.Record) []cards.Record {
	normalized := make([]cards.Record, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, NormalizeStudent(row))
	}
	return normalized
}

// NormalizeDataset normalizes every row and declares the canonical columns the rows gained.
func NormalizeDataset(dataset Dataset) Dataset {
	dataset.Rows = NormalizeRows(dataset.Rows)
	columns := append([]string(nil), dataset.Columns...)
	declared := make(map[string]bool, len(columns))
	for _, column := range columns {
		declared[column] = true
	}
	canonical := make([]string, 0, len(fieldAliases)+1)
	for _, alias := range fieldAliases {
		canonical = append(canonical, alias.field)
	}
	canonical = append(canonical, "qr")
	for _, field := range canonical {
		if declared[field] {
			continue
		}
		for _, row := range dataset.Rows {
			if _, ok := row[field]; ok {
				declared[field] = true
				columns = append(columns, field)
				break
			}
		}
	}
	dataset.Columns = columns
	return dataset
}
