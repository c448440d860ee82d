package scoring

import (
	"sort"
	"strings"
)

// Example is one representative result shown to the model during refinement.
type Example struct {
	TrackName   string  `json:"track_name"`
	ArtistNames string  `json:"artist_names"`
	ReleaseYear int     `json:"album_release_year"`
	Genres      string  `json:"spotify_artist_genres"`
	Score       float64 `json:"relevance_score"`
}

// Summary is the compact digest of a result set fed back to the translator
// between passes. It is also returned to clients alongside the final results.
type Summary struct {
	ResultCount int       `json:"result_count"`
	Examples    []Example `json:"examples,omitempty"`
	ScoreMin    float64   `json:"score_min"`
	ScoreMedian float64   `json:"score_median"`
	ScoreMax    float64   `json:"score_max"`
	YearMin     int       `json:"year_min"`
	YearMax     int       `json:"year_max"`
	TopGenres   []string  `json:"top_genres,omitempty"`
}

// Summarize digests a ranked result set. Results must already be sorted by
// Score, which is what Score returns.
func Summarize(ranked []RankedTrack) Summary {
	s := Summary{ResultCount: len(ranked)}
	if len(ranked) == 0 {
		return s
	}

	for i := 0; i < len(ranked) && i < 5; i++ {
		t := ranked[i].Track
		s.Examples = append(s.Examples, Example{
			TrackName:   t.TrackName,
			ArtistNames: t.ArtistNames,
			ReleaseYear: t.AlbumReleaseYear,
			Genres:      t.Genres,
			Score:       ranked[i].Score,
		})
	}

	s.ScoreMax = ranked[0].Score
	s.ScoreMin = ranked[len(ranked)-1].Score
	s.ScoreMedian = ranked[len(ranked)/2].Score

	s.YearMin = ranked[0].Track.AlbumReleaseYear
	s.YearMax = s.YearMin
	genreCount := map[string]int{}
	for _, r := range ranked {
		y := r.Track.AlbumReleaseYear
		if y < s.YearMin {
			s.YearMin = y
		}
		if y > s.YearMax {
			s.YearMax = y
		}
		for _, g := range splitGenres(r.Track.GenresLower()) {
			genreCount[g]++
		}
	}

	type gc struct {
		genre string
		n     int
	}
	counts := make([]gc, 0, len(genreCount))
	for g, n := range genreCount {
		counts = append(counts, gc{g, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].genre < counts[j].genre
	})
	for i := 0; i < len(counts) && i < 5; i++ {
		s.TopGenres = append(s.TopGenres, counts[i].genre)
	}
	return s
}

func splitGenres(csv string) []string {
	var out []string
	for _, g := range strings.Split(csv, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
