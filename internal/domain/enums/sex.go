package enums

import (
	"sort"
	"strings"
)

type Sex string

const (
	SexMale      Sex = "male"
	SexFemale    Sex = "female"
	SexNonbinary Sex = "nonbinary"
)

func ParseSex(raw string) (Sex, bool) {
	switch Sex(strings.ToLower(strings.TrimSpace(raw))) {
	case SexMale:
		return SexMale, true
	case SexFemale:
		return SexFemale, true
	case SexNonbinary:
		return SexNonbinary, true
	default:
		return "", false
	}
}

// SexSet is a parsed orientation preference. The zero value matches nobody and is
// reported as empty; callers treat an empty set as "no filter".
type SexSet struct {
	items map[Sex]struct{}
}

func NewSexSet(values ...Sex) SexSet {
	set := SexSet{items: make(map[Sex]struct{}, len(values))}
	for _, v := range values {
		set.items[v] = struct{}{}
	}
	return set
}

// ParseSexSet accepts the stored preference list. ok is false when any entry is not a
// known value, in which case the returned set is empty.
func ParseSexSet(raw []string) (SexSet, bool) {
	set := NewSexSet()
	for _, item := range raw {
		sex, ok := ParseSex(item)
		if !ok {
			return NewSexSet(), false
		}
		set.items[sex] = struct{}{}
	}
	return set, true
}

func (s SexSet) Empty() bool {
	return len(s.items) == 0
}

func (s SexSet) Contains(v Sex) bool {
	_, ok := s.items[v]
	return ok
}

// Values returns a sorted copy for SQL parameters.
func (s SexSet) Values() []string {
	out := make([]string, 0, len(s.items))
	for v := range s.items {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}
