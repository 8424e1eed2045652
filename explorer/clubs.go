package explorer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/datashelf/cache"
	"github.com/tailored-agentic-units/datashelf/dataset"
)

// ClubsConfig names the datasets and columns behind club lookups: the club
// directory (id and display name) and the games that place clubs in a
// competition and season.
type ClubsConfig struct {
	Dataset    string `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	IDColumn   string `json:"id_column,omitempty" yaml:"id_column,omitempty"`
	NameColumn string `json:"name_column,omitempty" yaml:"name_column,omitempty"`

	Games             string `json:"games,omitempty" yaml:"games,omitempty"`
	CompetitionColumn string `json:"competition_column,omitempty" yaml:"competition_column,omitempty"`
	SeasonColumn      string `json:"season_column,omitempty" yaml:"season_column,omitempty"`
	HomeColumn        string `json:"home_column,omitempty" yaml:"home_column,omitempty"`
	AwayColumn        string `json:"away_column,omitempty" yaml:"away_column,omitempty"`
}

// DefaultClubsConfig returns the Transfermarkt layout.
func DefaultClubsConfig() ClubsConfig {
	return ClubsConfig{
		Dataset:           "cur_clubs",
		IDColumn:          "club_id",
		NameColumn:        "name",
		Games:             "cur_games",
		CompetitionColumn: "competition_id",
		SeasonColumn:      "season",
		HomeColumn:        "home_club_id",
		AwayColumn:        "away_club_id",
	}
}

// Merge applies non-empty values from source into c.
func (c *ClubsConfig) Merge(source *ClubsConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Dataset, source.Dataset)
	set(&c.IDColumn, source.IDColumn)
	set(&c.NameColumn, source.NameColumn)
	set(&c.Games, source.Games)
	set(&c.CompetitionColumn, source.CompetitionColumn)
	set(&c.SeasonColumn, source.SeasonColumn)
	set(&c.HomeColumn, source.HomeColumn)
	set(&c.AwayColumn, source.AwayColumn)
}

// ClubDirectory maps club ids to display names and back.
type ClubDirectory struct {
	byID   map[string]string
	byName map[string]string
	names  []string
}

// newClubDirectory indexes a table projected to (id, name). Rows with an
// empty id or name are skipped; a name shared by several ids resolves to
// the first one.
func newClubDirectory(table *dataset.Table) *ClubDirectory {
	d := &ClubDirectory{
		byID:   make(map[string]string, len(table.Rows)),
		byName: make(map[string]string, len(table.Rows)),
	}
	for _, row := range table.Rows {
		if len(row) < 2 {
			continue
		}
		id, name := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if id == "" || name == "" {
			continue
		}
		if _, ok := d.byID[id]; !ok {
			d.byID[id] = name
		}
		if _, ok := d.byName[name]; !ok {
			d.byName[name] = id
			d.names = append(d.names, name)
		}
	}
	slices.Sort(d.names)
	return d
}

// Name returns the display name of club id.
func (d *ClubDirectory) Name(id string) (string, bool) {
	name, ok := d.byID[id]
	return name, ok
}

// ID returns the id of the club named name.
func (d *ClubDirectory) ID(name string) (string, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// Names returns every club name in sorted order.
func (d *ClubDirectory) Names() []string {
	return slices.Clone(d.names)
}

func (d *ClubDirectory) Len() int {
	return len(d.names)
}

// Clubs returns the club directory, loaded through the reference cache
// class. Session flags are not affected.
func (x *Explorer) Clubs(ctx context.Context, sessionID string) (*ClubDirectory, error) {
	if _, err := x.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	return x.clubDirectory(ctx)
}

func (x *Explorer) clubDirectory(ctx context.Context) (*ClubDirectory, error) {
	cfg := x.clubs
	desc, err := x.registry.Describe(cfg.Dataset)
	if err != nil {
		return nil, err
	}

	q := dataset.Query{Columns: []string{cfg.IDColumn, cfg.NameColumn}, Limit: dataset.NoLimit}
	table, err := x.classCache(ClassReference, desc).GetOrLoad(q.Key(desc.ID), func() (*dataset.Table, error) {
		return x.loader.Load(ctx, desc.ID, q)
	})
	if err != nil {
		return nil, err
	}
	return newClubDirectory(table), nil
}

// ResolveClubs maps club names to ids. Names missing from the directory
// fail with dataset.ErrInvalidQuery naming them.
func (x *Explorer) ResolveClubs(ctx context.Context, sessionID string, names ...string) ([]string, error) {
	dir, err := x.Clubs(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	var unknown []string
	for _, name := range names {
		id, ok := dir.ID(strings.TrimSpace(name))
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		ids = append(ids, id)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown clubs %s", dataset.ErrInvalidQuery, strings.Join(unknown, ", "))
	}
	return ids, nil
}

// ClubNames returns the sorted names of clubs that played a game in any of
// leagues during seasons fromSeason through toSeason. Games whose season is
// not an integer are ignored, as are club ids missing from the directory.
//
// The games of a league selection are loaded once through the lookup cache
// class; season bounds are applied to the cached rows.
func (x *Explorer) ClubNames(ctx context.Context, sessionID string, leagues []string, fromSeason, toSeason int) ([]string, error) {
	if _, err := x.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	leagues = slices.DeleteFunc(slices.Clone(leagues), func(l string) bool { return strings.TrimSpace(l) == "" })
	if len(leagues) == 0 {
		return []string{}, nil
	}
	if fromSeason > toSeason {
		fromSeason, toSeason = toSeason, fromSeason
	}

	cfg := x.clubs
	desc, err := x.registry.Describe(cfg.Games)
	if err != nil {
		return nil, err
	}
	dir, err := x.clubDirectory(ctx)
	if err != nil {
		return nil, err
	}

	q := dataset.Query{
		Columns: []string{cfg.SeasonColumn, cfg.HomeColumn, cfg.AwayColumn},
		Filters: []dataset.Filter{{Columns: []string{cfg.CompetitionColumn}, Values: leagues}},
		Limit:   dataset.NoLimit,
	}
	games, err := x.classCache(ClassLookup, desc).GetOrLoad(q.Key(desc.ID), func() (*dataset.Table, error) {
		return x.loader.Load(ctx, desc.ID, q)
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	names := []string{}
	for _, row := range games.Rows {
		if len(row) < 3 {
			continue
		}
		season, ok := parseSeason(row[0])
		if !ok || season < fromSeason || season > toSeason {
			continue
		}
		for _, id := range row[1:3] {
			name, ok := dir.Name(strings.TrimSpace(id))
			if ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

// parseSeason reads a season year such as "2022" or "2022.0".
func parseSeason(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// classCache returns the cache of class, or the dataset's own class cache
// when class is not configured.
func (x *Explorer) classCache(class string, desc dataset.Descriptor) *cache.Cache[*dataset.Table] {
	if c, ok := x.caches[class]; ok {
		return c
	}
	_, c := x.cacheFor(desc)
	return c
}
