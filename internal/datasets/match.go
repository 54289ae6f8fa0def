package datasets

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/photos"
)

// MatchPolicy selects how photo files are paired with rows.
type MatchPolicy string

const (
	// MatchExact pairs explicit photo columns and case-insensitive base names only.
	MatchExact MatchPolicy = "exact"
	// MatchExactThenSubstring additionally accepts a base name containing, or contained in, an id value.
	MatchExactThenSubstring MatchPolicy = "exact_then_substring"
)

var (
	explicitPhotoColumns = []string{"photo_file", "photo", "photo file", "photo_url", "image"}
	identityColumns      = []string{
		"studentId", "id", "rollNo", "roll_no", "student_id",
		"enrollment_no", "enrollmentNo", "prn", "reg_no", "regNo",
		"name", "full_name", "fullName", "student_name",
	}
)

// ParseMatchPolicy validates a configured policy name.
func ParseMatchPolicy(raw string) (MatchPolicy, error) {
	switch policy := MatchPolicy(strings.TrimSpace(strings.ToLower(raw))); policy {
	case MatchExact, MatchExactThenSubstring:
		return policy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMatchPolicy, raw)
	}
}

// MatchResult reports the outcome of pairing photos with rows.
type MatchResult struct {
	Rows     []cards.Record `json:"rows"`
	Matched  int            `json:"matched"`
	Unmapped []string       `json:"unmapped"`
}

// MatchPhotos assigns uploaded photos to rows. Each photo is assigned at most once,
// rows are visited in order, and matched rows get photo and photo_url set to the photo URL.
func MatchPhotos(rows []cards.Record, uploads []photos.Photo, policy MatchPolicy) MatchResult {
	used := make([]bool, len(uploads))
	result := MatchResult{Rows: make([]cards.Record, 0, len(rows)), Unmapped: []string{}}

	for _, row := range rows {
		updated := row.Clone()
		if index := matchRow(row, uploads, used, policy); index >= 0 {
			used[index] = true
			updated["photo"] = uploads[index].URL
			updated["photo_url"] = uploads[index].URL
			result.Matched++
		}
		result.Rows = append(result.Rows, updated)
	}
	for index, upload := range uploads {
		if !used[index] {
			result.Unmapped = append(result.Unmapped, upload.File)
		}
	}
	return result
}

func matchRow(row cards.Record, uploads []photos.Photo, used []bool, policy MatchPolicy) int {
	if explicit, ok := row.FirstOf(explicitPhotoColumns...); ok {
		for index, upload := range uploads {
			if !used[index] && (upload.File == explicit || upload.Name == explicit) {
				return index
			}
		}
	}
	for _, column := range identityColumns {
		id, ok := row.Lookup(column)
		if !ok {
			continue
		}
		id = strings.ToLower(id)
		for index, upload := range uploads {
			if !used[index] && baseName(upload) == id {
				return index
			}
		}
		if policy != MatchExactThenSubstring {
			continue
		}
		for index, upload := range uploads {
			base := baseName(upload)
			if used[index] || base == "" {
				continue
			}
			if strings.Contains(base, id) || strings.Contains(id, base) {
				return index
			}
		}
	}
	return -1
}

// baseName is the lower-cased original file name without its extension.
func baseName(upload photos.Photo) string {
	name := upload.Name
	if name == "" {
		name = upload.File
	}
	return strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
}
