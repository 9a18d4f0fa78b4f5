package projection

import (
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yungbote/neurobridge-presence/internal/domain"
)

var palette = []string{
	"#e57373", "#f06292", "#ba68c8", "#9575cd",
	"#7986cb", "#64b5f6", "#4fc3f7", "#4dd0e1",
	"#4db6ac", "#81c784", "#aed581", "#ff8a65",
	"#d4e157", "#ffd54f", "#ffb74d", "#a1887f",
}

// MergeProfiles folds incoming into existing and returns a new map. Fields
// missing from an incoming profile keep their old value.
func MergeProfiles(existing map[string]domain.Profile, incoming []domain.Profile) map[string]domain.Profile {
	out := make(map[string]domain.Profile, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for _, in := range incoming {
		if in.Handle == "" {
			continue
		}
		p := mergeProfile(out[in.Handle], in)
		p.DerivedLetter = DeriveLetter(p)
		p.DerivedColor = DeriveColor(p)
		out[p.Handle] = p
	}
	return out
}

func mergeProfile(old, in domain.Profile) domain.Profile {
	p := old
	p.Handle = in.Handle
	if in.ID != "" {
		p.ID = in.ID
	}
	if in.FullName != "" {
		p.FullName = in.FullName
	}
	if in.GivenName != "" {
		p.GivenName = in.GivenName
	}
	if in.ThumbnailID != "" {
		p.ThumbnailID = in.ThumbnailID
	}
	return p
}

// DeriveLetter is the avatar initial: given name, then full name, then handle.
func DeriveLetter(p domain.Profile) string {
	for _, s := range []string{p.GivenName, p.FullName, p.Handle} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(s)
		if r != utf8.RuneError {
			return string(unicode.ToUpper(r))
		}
	}
	return "?"
}

// DeriveColor picks a stable palette entry from the profile id, or the handle
// when the id is unknown.
func DeriveColor(p domain.Profile) string {
	seed := p.ID
	if seed == "" {
		seed = p.Handle
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return palette[h.Sum32()%uint32(len(palette))]
}
