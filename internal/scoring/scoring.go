// Package scoring implements the deterministic filter and ranking engine.
// Scoring is a pure function of the catalog and a filter document: no
// randomness, no clock, no I/O, so the same inputs always rank the same way.
package scoring

import (
	"sort"
	"strings"

	"github.com/slavierouse/sound-your-scene/internal/catalog"
	"github.com/slavierouse/sound-your-scene/internal/filterspec"
)

// BoostPoints is added once per boosted genre term a track matches.
const BoostPoints = 50

// RankedTrack pairs a surviving track with its relevance score.
type RankedTrack struct {
	Track catalog.Track
	Score float64
}

type decileRule struct {
	min, max, weight int
	value            func(catalog.Track) int
}

func decileRules(s filterspec.FilterSpec) []decileRule {
	return []decileRule{
		{s.DanceabilityMinDecile, s.DanceabilityMaxDecile, s.DanceabilityDecileWeight, func(t catalog.Track) int { return t.DanceabilityDecile }},
		{s.EnergyMinDecile, s.EnergyMaxDecile, s.EnergyDecileWeight, func(t catalog.Track) int { return t.EnergyDecile }},
		{s.AcousticnessMinDecile, s.AcousticnessMaxDecile, s.AcousticnessDecileWeight, func(t catalog.Track) int { return t.AcousticnessDecile }},
		{s.LivenessMinDecile, s.LivenessMaxDecile, s.LivenessDecileWeight, func(t catalog.Track) int { return t.LivenessDecile }},
		{s.ValenceMinDecile, s.ValenceMaxDecile, s.ValenceDecileWeight, func(t catalog.Track) int { return t.ValenceDecile }},
		{s.ViewsMinDecile, s.ViewsMaxDecile, s.ViewsDecileWeight, func(t catalog.Track) int { return t.ViewsDecile }},
	}
}

type directRule struct {
	min, max float64
	weight   int
	value    func(catalog.Track) float64
	decile   func(catalog.Track) int
}

func directRules(s filterspec.FilterSpec) []directRule {
	return []directRule{
		{s.LoudnessMin, s.LoudnessMax, s.LoudnessDecileWeight, func(t catalog.Track) float64 { return t.Loudness }, func(t catalog.Track) int { return t.LoudnessDecile }},
		{s.TempoMin, s.TempoMax, s.TempoDecileWeight, func(t catalog.Track) float64 { return t.Tempo }, func(t catalog.Track) int { return t.TempoDecile }},
		{s.DurationMSMin, s.DurationMSMax, s.DurationMSDecileWeight, func(t catalog.Track) float64 { return t.DurationMS }, func(t catalog.Track) int { return t.DurationMSDecile }},
		{s.InstrumentalnessMin, s.InstrumentalnessMax, s.InstrumentalnessDecileWeight, func(t catalog.Track) float64 { return t.Instrumentalness }, func(t catalog.Track) int { return t.InstrumentalnessDecile }},
	}
}

// Score filters the catalog against the spec and ranks the survivors.
// Ties break on views descending then track id ascending, so an all-zero
// score spec degrades to a stable popularity ordering. A spec that matches
// nothing returns an empty slice, not an error.
func Score(c *catalog.Catalog, spec filterspec.FilterSpec) []RankedTrack {
	deciles := decileRules(spec)
	directs := directRules(spec)
	include := spec.IncludeTerms()
	exclude := spec.ExcludeTerms()
	boost := spec.BoostTerms()

	ranked := make([]RankedTrack, 0, c.Len())
	for _, track := range c.Tracks() {
		if !matches(track, deciles, directs, spec, include, exclude) {
			continue
		}
		score := 0.0
		for _, r := range deciles {
			if r.weight != 0 {
				score += float64(r.weight * r.value(track))
			}
		}
		for _, r := range directs {
			if r.weight != 0 {
				score += float64(r.weight * r.decile(track))
			}
		}
		genres := track.GenresLower()
		for _, term := range boost {
			if strings.Contains(genres, term) {
				score += BoostPoints
			}
		}
		ranked = append(ranked, RankedTrack{Track: track, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Track.Views != ranked[j].Track.Views {
			return ranked[i].Track.Views > ranked[j].Track.Views
		}
		return ranked[i].Track.TrackID < ranked[j].Track.TrackID
	})
	return ranked
}

func matches(t catalog.Track, deciles []decileRule, directs []directRule, spec filterspec.FilterSpec, include, exclude []string) bool {
	for _, r := range deciles {
		d := r.value(t)
		if d < r.min || d > r.max {
			return false
		}
	}
	for _, r := range directs {
		v := r.value(t)
		if v < r.min || v > r.max {
			return false
		}
	}
	if t.AlbumReleaseYear < spec.AlbumReleaseYearMin || t.AlbumReleaseYear > spec.AlbumReleaseYearMax {
		return false
	}
	explicit := 0
	if t.Explicit {
		explicit = 1
	}
	if explicit < spec.TrackIsExplicitMin || explicit > spec.TrackIsExplicitMax {
		return false
	}
	genres := t.GenresLower()
	if len(include) > 0 {
		found := false
		for _, term := range include {
			if strings.Contains(genres, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, term := range exclude {
		if strings.Contains(genres, term) {
			return false
		}
	}
	return true
}
