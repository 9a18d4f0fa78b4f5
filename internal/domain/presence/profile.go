package presence

import (
	"encoding/json"
	"strings"
)

type Profile struct {
	Handle        string `json:"handle"`
	ID            string `json:"id,omitempty"`
	FullName      string `json:"fullName,omitempty"`
	GivenName     string `json:"givenName,omitempty"`
	ThumbnailID   string `json:"thumbnailId,omitempty"`
	DerivedLetter string `json:"derivedLetter,omitempty"`
	DerivedColor  string `json:"derivedColor,omitempty"`
}

type profilesWire struct {
	Profiles []Profile `json:"profiles"`
}

// DecodeProfiles accepts both the minimal and the full profile shape.
// Derived fields sent by the server are ignored; they are recomputed locally.
func DecodeProfiles(data json.RawMessage) ([]Profile, error) {
	var wire profilesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(wire.Profiles))
	for _, p := range wire.Profiles {
		p.Handle = strings.TrimSpace(p.Handle)
		if p.Handle == "" {
			continue
		}
		p.DerivedLetter = ""
		p.DerivedColor = ""
		out = append(out, p)
	}
	return out, nil
}
