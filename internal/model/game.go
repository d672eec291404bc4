package model

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
	"time"
)

// GameID uniquely identifies a published game
type GameID string

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Valid reports whether the id is safe to use as a catalog key and directory name
func (id GameID) Valid() bool {
	return gameIDPattern.MatchString(string(id)) && !strings.Contains(string(id), "..")
}

// DeriveGameID builds the game id for a declared name: lower case, spaces become
// underscores, anything outside the id alphabet is dropped
func DeriveGameID(name string) GameID {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	return GameID(strings.Trim(b.String(), "._-"))
}

// Review is a player's rating of a game
type Review struct {
	Reviewer  string    `json:"user"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// GameRecord is a published game in the catalog.
// Extra holds any additional publisher metadata; it is flattened into the
// top-level JSON object alongside the known fields.
type GameRecord struct {
	GameID         GameID
	Owner          string // immutable after creation
	Name           string
	CurrentVersion string
	Description    string
	VersionHistory []string // append-only, always contains CurrentVersion
	Reviews        []Review
	Extra          map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GameMeta is the metadata a publisher supplies with an upload
type GameMeta struct {
	GameID      GameID
	Name        string
	Version     string
	Description string
	Extra       map[string]any
}

// knownGameFields are the JSON keys owned by GameRecord/GameMeta; everything else is Extra
var knownGameFields = []string{
	"game_id", "owner", "name", "version", "description",
	"versions", "reviews", "created_at", "updated_at",
}

// HasVersion reports whether v is already in the version history
func (g *GameRecord) HasVersion(v string) bool {
	return slices.Contains(g.VersionHistory, v)
}

// AverageRating returns the mean review rating, or 0 with no reviews
func (g *GameRecord) AverageRating() float64 {
	if len(g.Reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range g.Reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(g.Reviews))
}

// Clone returns a deep copy of the record
func (g *GameRecord) Clone() *GameRecord {
	out := *g
	out.VersionHistory = slices.Clone(g.VersionHistory)
	out.Reviews = slices.Clone(g.Reviews)
	out.Extra = cloneExtra(g.Extra)
	return &out
}

// MarshalJSON flattens Extra into the record object
func (g GameRecord) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(g.Extra)+len(knownGameFields))
	for k, v := range g.Extra {
		obj[k] = v
	}
	obj["game_id"] = g.GameID
	obj["owner"] = g.Owner
	obj["name"] = g.Name
	obj["version"] = g.CurrentVersion
	obj["description"] = g.Description
	obj["versions"] = nonNil(g.VersionHistory)
	obj["reviews"] = nonNil(g.Reviews)
	obj["created_at"] = g.CreatedAt
	obj["updated_at"] = g.UpdatedAt
	return json.Marshal(obj)
}

// UnmarshalJSON reads known fields and collects the rest into Extra
func (g *GameRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var rec GameRecord
	fields := []struct {
		key string
		dst any
	}{
		{"game_id", &rec.GameID},
		{"owner", &rec.Owner},
		{"name", &rec.Name},
		{"version", &rec.CurrentVersion},
		{"description", &rec.Description},
		{"versions", &rec.VersionHistory},
		{"reviews", &rec.Reviews},
		{"created_at", &rec.CreatedAt},
		{"updated_at", &rec.UpdatedAt},
	}
	for _, f := range fields {
		if v, ok := raw[f.key]; ok {
			if err := json.Unmarshal(v, f.dst); err != nil {
				return err
			}
		}
	}
	extra, err := extraFields(raw)
	if err != nil {
		return err
	}
	rec.Extra = extra
	*g = rec
	return nil
}

// MarshalJSON flattens Extra into the metadata object
func (m GameMeta) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		obj[k] = v
	}
	if m.GameID != "" {
		obj["game_id"] = m.GameID
	}
	obj["name"] = m.Name
	obj["version"] = m.Version
	obj["description"] = m.Description
	return json.Marshal(obj)
}

// UnmarshalJSON reads known fields and collects the rest into Extra.
// Server-owned keys (owner, versions, reviews, timestamps) are dropped.
func (m *GameMeta) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var meta GameMeta
	fields := []struct {
		key string
		dst any
	}{
		{"game_id", &meta.GameID},
		{"name", &meta.Name},
		{"version", &meta.Version},
		{"description", &meta.Description},
	}
	for _, f := range fields {
		if v, ok := raw[f.key]; ok {
			if err := json.Unmarshal(v, f.dst); err != nil {
				return err
			}
		}
	}
	extra, err := extraFields(raw)
	if err != nil {
		return err
	}
	meta.Extra = extra
	*m = meta
	return nil
}

func extraFields(raw map[string]json.RawMessage) (map[string]any, error) {
	var extra map[string]any
	for k, v := range raw {
		if slices.Contains(knownGameFields, k) {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, err
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = val
	}
	return extra, nil
}

func cloneExtra(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneExtra(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// GameTable is the persisted games document, keyed by game id
type GameTable map[GameID]*GameRecord

// Clone returns a deep copy of the table
func (t GameTable) Clone() GameTable {
	out := make(GameTable, len(t))
	for id, g := range t {
		out[id] = g.Clone()
	}
	return out
}
