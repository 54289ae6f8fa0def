// Package datasets stores imported student rows and prepares them for card generation.
package datasets

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
)

var (
	// ErrDatasetNotFound indicates a missing dataset.
	ErrDatasetNotFound = errors.New("datasets: dataset not found")
	// ErrInvalidDataset indicates a dataset that failed validation.
	ErrInvalidDataset = errors.New("datasets: invalid dataset")
	// ErrEmptyCSV indicates a CSV payload without a header row.
	ErrEmptyCSV = errors.New("datasets: csv has no header")
	// ErrUnknownMatchPolicy indicates a photo match policy outside the supported set.
	ErrUnknownMatchPolicy = errors.New("datasets: unknown match policy")
)

// Dataset is a named table of rows keyed by column.
type Dataset struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId,omitempty"`
	Name      string         `json:"name"`
	Columns   []string       `json:"columns"`
	Rows      []cards.Record `json:"rows"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Summary is the listing form of a dataset.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the dataset has a name and that every row key is a declared column.
func (d Dataset) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDataset)
	}
	declared := make(map[string]struct{}, len(d.Columns))
	for _, column := range d.Columns {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("%w: blank column name", ErrInvalidDataset)
		}
		if _, dup := declared[column]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidDataset, column)
		}
		declared[column] = struct{}{}
	}
	for _, row := range d.Rows {
		for key := range row {
			if _, ok := declared[key]; !ok {
				return fmt.Errorf("%w: row field %q is not a declared column", ErrInvalidDataset, key)
			}
		}
	}
	return nil
}

// Summarize returns the listing form.
func (d Dataset) Summarize() Summary {
	return Summary{ID: d.ID, Name: d.Name, Rows: len(d.Rows), Columns: len(d.Columns), CreatedAt: d.CreatedAt}
}
