package cards

import (
	"fmt"
	"sort"
)

// CloneElements deep-copies a collection. A nil input yields an empty, non-nil slice.
func CloneElements(elements []Element) []Element {
	cloned := make([]Element, len(elements))
	for index, element := range elements {
		cloned[index] = element.Clone()
	}
	return cloned
}

// IndexOf returns the slice position of the element with the id, or -1.
func IndexOf(elements []Element, id string) int {
	if id == "" {
		return -1
	}
	for index := range elements {
		if elements[index].ID == id {
			return index
		}
	}
	return -1
}

// Find returns a copy of the element with the id.
func Find(elements []Element, id string) (Element, bool) {
	index := IndexOf(elements, id)
	if index < 0 {
		return Element{}, false
	}
	return elements[index].Clone(), true
}

// SortByZ returns a copy ordered ascending by zIndex. Ties keep insertion order.
func SortByZ(elements []Element) []Element {
	sorted := CloneElements(elements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ZIndex < sorted[j].ZIndex
	})
	return sorted
}

// Renormalize orders the collection by zIndex and rewrites zIndex to 1..N.
func Renormalize(elements []Element) []Element {
	sorted := SortByZ(elements)
	for index := range sorted {
		sorted[index].ZIndex = index + 1
	}
	return sorted
}

// ZContiguous reports whether the zIndex values are exactly {1..N} without duplicates.
func ZContiguous(elements []Element) bool {
	seen := make(map[int]struct{}, len(elements))
	for _, element := range elements {
		if element.ZIndex < 1 || element.ZIndex > len(elements) {
			return false
		}
		if _, dup := seen[element.ZIndex]; dup {
			return false
		}
		seen[element.ZIndex] = struct{}{}
	}
	return true
}

// ValidateCollection checks every element and the per-side id uniqueness rule.
func ValidateCollection(elements []Element) error {
	ids := make(map[string]struct{}, len(elements))
	for _, element := range elements {
		if err := element.Validate(); err != nil {
			return err
		}
		if _, dup := ids[element.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidElement, element.ID)
		}
		ids[element.ID] = struct{}{}
	}
	return nil
}

// EqualElements compares two collections structurally, in order.
func EqualElements(left, right []Element) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if !EqualElement(left[index], right[index]) {
			return false
		}
	}
	return true
}

// EqualElement compares two elements field by field, dereferencing optional modifiers.
func EqualElement(left, right Element) bool {
	if left.IsVisible() != right.IsVisible() || left.EffectiveOpacity() != right.EffectiveOpacity() {
		return false
	}
	left.Visible, right.Visible = nil, nil
	left.Opacity, right.Opacity = nil, nil
	return left == right
}
