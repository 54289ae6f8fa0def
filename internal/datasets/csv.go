package datasets

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
)

// DefaultFields are the card fields every sample sheet carries.
var DefaultFields = []string{
	"full_name", "prn", "enrollment_no", "batch", "university",
	"department", "birthdate", "address", "mobile", "photo", "qr",
}

var contentField = regexp.MustCompile(`\{\{?([A-Za-z0-9_]+)\}?\}`)

// ParseCSV reads a header row followed by data rows. Short rows are padded with
// empty values and extra cells beyond the header are dropped.
func ParseCSV(name string, source io.Reader) (Dataset, error) {
	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Dataset{}, ErrEmptyCSV
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("read csv header: %w", err)
	}
	columns := make([]string, 0, len(header))
	for index, column := range header {
		column = strings.TrimSpace(strings.TrimPrefix(column, "\ufeff"))
		if column == "" {
			column = fmt.Sprintf("column_%d", index+1)
		}
		columns = append(columns, column)
	}

	dataset := Dataset{Name: strings.TrimSpace(name), Columns: columns, Rows: []cards.Record{}}
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read csv row %d: %w", len(dataset.Rows)+2, err)
		}
		row := make(cards.Record, len(columns))
		for index, column := range columns {
			if index < len(cells) {
				row[column] = strings.TrimSpace(cells[index])
			} else {
				row[column] = ""
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	if err := dataset.Validate(); err != nil {
		return Dataset{}, err
	}
	return dataset, nil
}

// FieldsFromElements collects the bound fields of the given sides, followed by DefaultFields.
func FieldsFromElements(sides ...[]cards.Element) []string {
	seen := map[string]struct{}{}
	fields := []string{}
	add := func(field string) {
		field = strings.TrimSpace(field)
		if field == "" {
			return
		}
		if _, ok := seen[field]; ok {
			return
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	for _, elements := range sides {
		for _, element := range elements {
			if element.IsDynamic {
				add(element.DataField)
			}
			for _, match := range contentField.FindAllStringSubmatch(element.Content, -1) {
				add(match[1])
			}
		}
	}
	for _, field := range DefaultFields {
		add(field)
	}
	return fields
}

// SampleCSV renders count example rows for the fields.
func SampleCSV(fields []string, count int) ([]byte, error) {
	if count < 1 {
		count = 1
	}
	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)
	if err := writer.Write(fields); err != nil {
		return nil, err
	}
	for index := 1; index <= count; index++ {
		row := make([]string, 0, len(fields))
		for _, field := range fields {
			row = append(row, sampleValue(field, index))
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func sampleValue(field string, index int) string {
	switch field {
	case "full_name":
		return fmt.Sprintf("Student %d", index)
	case "prn", "qr":
		return fmt.Sprintf("STU-2024-%03d", index)
	case "enrollment_no":
		return fmt.Sprintf("ENR-%06d", index)
	case "batch":
		return "2022-26"
	case "university":
		return "University of Technology"
	case "department":
		return "Computer Science"
	case "birthdate":
		return "2004-01-01"
	case "address":
		return fmt.Sprintf("Address %d, City, State", index)
	case "mobile":
		return fmt.Sprintf("+91 90000 %05d", index)
	case "photo":
		return fmt.Sprintf("student_%d.jpg", index)
	default:
		return fmt.Sprintf("Sample %s %d", field, index)
	}
}
