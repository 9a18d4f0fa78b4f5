// Package projection derives who is where from PresentUsers pushes. Nothing
// here returns errors: input it cannot place is left out or indexed at its
// own location.
package projection

import (
	"maps"
	"slices"
	"strings"

	"github.com/yungbote/neurobridge-presence/internal/domain"
)

// Index maps locations to the handles present there. Slices are sorted and
// must be treated as immutable: Project hands back the previous slice (and
// the previous map) whenever the contents did not change, so identity
// comparison is a valid change check.
type Index struct {
	AtLocation    map[string][]string `json:"atLocation"`
	WithinSubtree map[string][]string `json:"withinSubtree"`
	OnField       map[string]string   `json:"onField"`
}

// Project builds the index for users, reusing prev where nothing changed.
// ancestors maps a location id to the ids of every location above it. self is
// never indexed.
func Project(prev Index, users []domain.PresentUser, ancestors map[string][]string, self string) Index {
	ix, _ := project(prev, users, ancestors, self)
	return ix
}

// project also reports whether any of the three maps was replaced.
func project(prev Index, users []domain.PresentUser, ancestors map[string][]string, self string) (Index, bool) {
	self = strings.TrimSpace(self)
	at := map[string][]string{}
	within := map[string][]string{}
	onField := map[string]string{}
	fieldSeen := map[string]domain.PresentUser{}

	for _, u := range users {
		if u.Handle == "" || u.Handle == self || u.RawLocation == nil {
			continue
		}
		raw := strings.TrimSpace(*u.RawLocation)
		loc, ok := domain.ParseLocation(raw)
		if !ok {
			continue
		}

		if loc.Field == "" {
			at[loc.ID] = appendUnique(at[loc.ID], u.Handle)
		} else {
			key := loc.Key()
			if cur, ok := fieldSeen[key]; !ok || moreRecent(u, cur) {
				fieldSeen[key] = u
				onField[key] = u.Handle
			}
		}

		within[loc.ID] = appendUnique(within[loc.ID], u.Handle)
		for _, anc := range ancestors[loc.ID] {
			anc = strings.TrimSpace(anc)
			if anc == "" || anc == loc.ID {
				continue
			}
			within[anc] = appendUnique(within[anc], u.Handle)
		}
	}

	atOut, atSame := stabilize(prev.AtLocation, at)
	withinOut, withinSame := stabilize(prev.WithinSubtree, within)
	fieldOut, fieldSame := stabilizeFields(prev.OnField, onField)
	ix := Index{AtLocation: atOut, WithinSubtree: withinOut, OnField: fieldOut}
	return ix, !(atSame && withinSame && fieldSame)
}

func moreRecent(a, b domain.PresentUser) bool {
	if !a.LastActiveAt.Equal(b.LastActiveAt) {
		return a.LastActiveAt.After(b.LastActiveAt)
	}
	return a.Handle < b.Handle
}

func appendUnique(list []string, handle string) []string {
	if slices.Contains(list, handle) {
		return list
	}
	return append(list, handle)
}

func stabilize(prev, next map[string][]string) (map[string][]string, bool) {
	same := len(prev) == len(next)
	for key, handles := range next {
		slices.Sort(handles)
		old, ok := prev[key]
		if ok && slices.Equal(old, handles) {
			next[key] = old
			continue
		}
		same = false
	}
	if same && prev != nil {
		return prev, true
	}
	return next, false
}

func stabilizeFields(prev, next map[string]string) (map[string]string, bool) {
	if prev != nil && maps.Equal(prev, next) {
		return prev, true
	}
	return next, false
}

// At returns the handles exactly at loc.
func (ix Index) At(loc string) []string { return ix.AtLocation[loc] }

// Within returns the handles at loc or anywhere below it.
func (ix Index) Within(loc string) []string { return ix.WithinSubtree[loc] }

// Field returns the handle shown on a location's field, if any.
func (ix Index) Field(locationID, fieldID string) (string, bool) {
	h, ok := ix.OnField[domain.Location{ID: locationID, Field: fieldID}.Key()]
	return h, ok
}
