package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Track is one catalog entry with its audio features. Decile fields are
// computed at load time from the whole dataset so that scoring can compare
// tracks on a uniform 1..10 scale regardless of each feature's raw units.
type Track struct {
	TrackID     string
	TrackName   string
	ArtistNames string
	AlbumName   string

	Danceability     float64
	Energy           float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Valence          float64
	Loudness         float64
	Tempo            float64
	DurationMS       float64
	Views            float64

	AlbumReleaseYear int
	Explicit         bool
	Genres           string

	SpotifyURL string
	YoutubeURL string

	DanceabilityDecile     int
	EnergyDecile           int
	AcousticnessDecile     int
	InstrumentalnessDecile int
	LivenessDecile         int
	ValenceDecile          int
	ViewsDecile            int
	LoudnessDecile         int
	TempoDecile            int
	DurationMSDecile       int
}

// GenresLower returns the genre list lowercased for containment matching.
func (t Track) GenresLower() string {
	return strings.ToLower(t.Genres)
}

// Catalog is the immutable in-memory track dataset shared by all jobs.
type Catalog struct {
	tracks []Track
	byID   map[string]*Track
}

// Load reads the track dataset from a CSV file and computes decile ranks.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV track data from r. The first row must be a header; columns
// are matched by name so the dataset may carry extra columns in any order.
func Read(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"track_id", "track_name"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("catalog missing required column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	getFloat := func(rec []string, name string) float64 {
		v, err := strconv.ParseFloat(get(rec, name), 64)
		if err != nil {
			return 0
		}
		return v
	}
	getInt := func(rec []string, name string) int {
		v, err := strconv.Atoi(get(rec, name))
		if err != nil {
			return int(getFloat(rec, name))
		}
		return v
	}

	var tracks []Track
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading catalog line %d: %w", line, err)
		}
		id := get(rec, "track_id")
		if id == "" {
			continue
		}
		explicit := get(rec, "track_is_explicit")
		tracks = append(tracks, Track{
			TrackID:          id,
			TrackName:        get(rec, "track_name"),
			ArtistNames:      get(rec, "artist_names"),
			AlbumName:        get(rec, "album_name"),
			Danceability:     getFloat(rec, "danceability"),
			Energy:           getFloat(rec, "energy"),
			Acousticness:     getFloat(rec, "acousticness"),
			Instrumentalness: getFloat(rec, "instrumentalness"),
			Liveness:         getFloat(rec, "liveness"),
			Valence:          getFloat(rec, "valence"),
			Loudness:         getFloat(rec, "loudness"),
			Tempo:            getFloat(rec, "tempo"),
			DurationMS:       getFloat(rec, "duration_ms"),
			Views:            getFloat(rec, "views"),
			AlbumReleaseYear: getInt(rec, "album_release_year"),
			Explicit:         explicit == "1" || strings.EqualFold(explicit, "true"),
			Genres:           get(rec, "spotify_artist_genres"),
			SpotifyURL:       get(rec, "spotify_url"),
			YoutubeURL:       get(rec, "youtube_url"),
		})
	}

	return FromTracks(tracks), nil
}

// FromTracks builds a catalog from already-parsed tracks, computing deciles.
func FromTracks(tracks []Track) *Catalog {
	computeDeciles(tracks)
	byID := make(map[string]*Track, len(tracks))
	for i := range tracks {
		byID[tracks[i].TrackID] = &tracks[i]
	}
	return &Catalog{tracks: tracks, byID: byID}
}

// Tracks returns the full dataset. Callers must not mutate the slice.
func (c *Catalog) Tracks() []Track { return c.tracks }

// Len reports the number of tracks in the catalog.
func (c *Catalog) Len() int { return len(c.tracks) }

// ByID looks up a track by its id.
func (c *Catalog) ByID(id string) (Track, bool) {
	t, ok := c.byID[id]
	if !ok {
		return Track{}, false
	}
	return *t, true
}

// computeDeciles assigns each decile-scored feature a rank bucket in 1..10.
// Buckets are rank based, so ties in the raw value may straddle a boundary;
// that matches how the dataset is prepared upstream and keeps buckets even.
func computeDeciles(tracks []Track) {
	n := len(tracks)
	if n == 0 {
		return
	}
	type accessor struct {
		value func(*Track) float64
		set   func(*Track, int)
	}
	features := []accessor{
		{func(t *Track) float64 { return t.Danceability }, func(t *Track, d int) { t.DanceabilityDecile = d }},
		{func(t *Track) float64 { return t.Energy }, func(t *Track, d int) { t.EnergyDecile = d }},
		{func(t *Track) float64 { return t.Acousticness }, func(t *Track, d int) { t.AcousticnessDecile = d }},
		{func(t *Track) float64 { return t.Instrumentalness }, func(t *Track, d int) { t.InstrumentalnessDecile = d }},
		{func(t *Track) float64 { return t.Liveness }, func(t *Track, d int) { t.LivenessDecile = d }},
		{func(t *Track) float64 { return t.Valence }, func(t *Track, d int) { t.ValenceDecile = d }},
		{func(t *Track) float64 { return t.Views }, func(t *Track, d int) { t.ViewsDecile = d }},
		{func(t *Track) float64 { return t.Loudness }, func(t *Track, d int) { t.LoudnessDecile = d }},
		{func(t *Track) float64 { return t.Tempo }, func(t *Track, d int) { t.TempoDecile = d }},
		{func(t *Track) float64 { return t.DurationMS }, func(t *Track, d int) { t.DurationMSDecile = d }},
	}
	order := make([]int, n)
	for _, f := range features {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return f.value(&tracks[order[a]]) < f.value(&tracks[order[b]])
		})
		for rank, idx := range order {
			d := rank*10/n + 1
			if d > 10 {
				d = 10
			}
			f.set(&tracks[idx], d)
		}
	}
}
