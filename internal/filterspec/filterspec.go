// Package filterspec defines the structured filter document produced by the
// query translator and consumed by the scoring engine. The shape is flat on
// purpose: a flat object with explicit per-field bounds is the most reliable
// target for structured model output.
package filterspec

import (
	"fmt"
	"strings"
)

// Bounds used by Default when a field should not constrain anything.
const (
	DefaultDirectMin = -100
	DefaultDirectMax = 99999999
	DefaultYearMin   = 1900
	DefaultYearMax   = 2100
)

// FilterSpec is a full filter document. Decile features are bounded on a
// 0..10 scale where [0,10] means unconstrained; direct features are bounded
// in their raw units. Weights steer ranking and may be negative.
type FilterSpec struct {
	DanceabilityMinDecile    int `json:"danceability_min_decile" jsonschema:"required"`
	DanceabilityMaxDecile    int `json:"danceability_max_decile" jsonschema:"required"`
	DanceabilityDecileWeight int `json:"danceability_decile_weight" jsonschema:"required"`

	EnergyMinDecile    int `json:"energy_min_decile" jsonschema:"required"`
	EnergyMaxDecile    int `json:"energy_max_decile" jsonschema:"required"`
	EnergyDecileWeight int `json:"energy_decile_weight" jsonschema:"required"`

	AcousticnessMinDecile    int `json:"acousticness_min_decile" jsonschema:"required"`
	AcousticnessMaxDecile    int `json:"acousticness_max_decile" jsonschema:"required"`
	AcousticnessDecileWeight int `json:"acousticness_decile_weight" jsonschema:"required"`

	LivenessMinDecile    int `json:"liveness_min_decile" jsonschema:"required"`
	LivenessMaxDecile    int `json:"liveness_max_decile" jsonschema:"required"`
	LivenessDecileWeight int `json:"liveness_decile_weight" jsonschema:"required"`

	ValenceMinDecile    int `json:"valence_min_decile" jsonschema:"required"`
	ValenceMaxDecile    int `json:"valence_max_decile" jsonschema:"required"`
	ValenceDecileWeight int `json:"valence_decile_weight" jsonschema:"required"`

	ViewsMinDecile    int `json:"views_min_decile" jsonschema:"required"`
	ViewsMaxDecile    int `json:"views_max_decile" jsonschema:"required"`
	ViewsDecileWeight int `json:"views_decile_weight" jsonschema:"required"`

	LoudnessMin          float64 `json:"loudness_min" jsonschema:"required"`
	LoudnessMax          float64 `json:"loudness_max" jsonschema:"required"`
	LoudnessDecileWeight int     `json:"loudness_decile_weight" jsonschema:"required"`

	TempoMin          float64 `json:"tempo_min" jsonschema:"required"`
	TempoMax          float64 `json:"tempo_max" jsonschema:"required"`
	TempoDecileWeight int     `json:"tempo_decile_weight" jsonschema:"required"`

	DurationMSMin          float64 `json:"duration_ms_min" jsonschema:"required"`
	DurationMSMax          float64 `json:"duration_ms_max" jsonschema:"required"`
	DurationMSDecileWeight int     `json:"duration_ms_decile_weight" jsonschema:"required"`

	InstrumentalnessMin          float64 `json:"instrumentalness_min" jsonschema:"required"`
	InstrumentalnessMax          float64 `json:"instrumentalness_max" jsonschema:"required"`
	InstrumentalnessDecileWeight int     `json:"instrumentalness_decile_weight" jsonschema:"required"`

	AlbumReleaseYearMin int `json:"album_release_year_min" jsonschema:"required"`
	AlbumReleaseYearMax int `json:"album_release_year_max" jsonschema:"required"`

	TrackIsExplicitMin int `json:"track_is_explicit_min" jsonschema:"required"`
	TrackIsExplicitMax int `json:"track_is_explicit_max" jsonschema:"required"`

	// Comma separated genre terms matched by substring containment.
	GenresIncludeAny string `json:"spotify_artist_genres_include_any" jsonschema:"required"`
	GenresExcludeAny string `json:"spotify_artist_genres_exclude_any" jsonschema:"required"`
	GenresBoosted    string `json:"spotify_artist_genres_boosted" jsonschema:"required"`

	// Model-authored metadata carried alongside the filters.
	DebugTag    string `json:"debug_tag" jsonschema:"required"`
	Reflection  string `json:"reflection" jsonschema:"required"`
	UserMessage string `json:"user_message" jsonschema:"required"`
}

// Default returns a spec whose every bound is wide open. Decoding model
// output into a Default() value means fields the model omits stay no-ops
// instead of collapsing to zero and silently filtering everything out.
func Default() FilterSpec {
	return FilterSpec{
		DanceabilityMaxDecile: 10,
		EnergyMaxDecile:       10,
		AcousticnessMaxDecile: 10,
		LivenessMaxDecile:     10,
		ValenceMaxDecile:      10,
		ViewsMaxDecile:        10,

		LoudnessMin:   DefaultDirectMin,
		LoudnessMax:   DefaultDirectMax,
		TempoMin:      DefaultDirectMin,
		TempoMax:      DefaultDirectMax,
		DurationMSMin: DefaultDirectMin,
		DurationMSMax: DefaultDirectMax,

		InstrumentalnessMin: 0.0,
		InstrumentalnessMax: 1.0,

		AlbumReleaseYearMin: DefaultYearMin,
		AlbumReleaseYearMax: DefaultYearMax,

		TrackIsExplicitMin: 0,
		TrackIsExplicitMax: 1,
	}
}

// Validate checks internal consistency of the spec. It does not reject
// wide-open specs: an empty query legitimately matches everything.
func (s FilterSpec) Validate() error {
	decile := func(name string, min, max, weight int) error {
		if min < 0 || min > 10 || max < 0 || max > 10 {
			return fmt.Errorf("%s deciles must be within [0,10]", name)
		}
		if min > max {
			return fmt.Errorf("%s min decile %d exceeds max %d", name, min, max)
		}
		if weight < -100 || weight > 100 {
			return fmt.Errorf("%s weight %d outside [-100,100]", name, weight)
		}
		return nil
	}
	checks := []error{
		decile("danceability", s.DanceabilityMinDecile, s.DanceabilityMaxDecile, s.DanceabilityDecileWeight),
		decile("energy", s.EnergyMinDecile, s.EnergyMaxDecile, s.EnergyDecileWeight),
		decile("acousticness", s.AcousticnessMinDecile, s.AcousticnessMaxDecile, s.AcousticnessDecileWeight),
		decile("liveness", s.LivenessMinDecile, s.LivenessMaxDecile, s.LivenessDecileWeight),
		decile("valence", s.ValenceMinDecile, s.ValenceMaxDecile, s.ValenceDecileWeight),
		decile("views", s.ViewsMinDecile, s.ViewsMaxDecile, s.ViewsDecileWeight),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	direct := func(name string, min, max float64, weight int) error {
		if min > max {
			return fmt.Errorf("%s min %v exceeds max %v", name, min, max)
		}
		if weight < -100 || weight > 100 {
			return fmt.Errorf("%s weight %d outside [-100,100]", name, weight)
		}
		return nil
	}
	for _, err := range []error{
		direct("loudness", s.LoudnessMin, s.LoudnessMax, s.LoudnessDecileWeight),
		direct("tempo", s.TempoMin, s.TempoMax, s.TempoDecileWeight),
		direct("duration_ms", s.DurationMSMin, s.DurationMSMax, s.DurationMSDecileWeight),
	} {
		if err != nil {
			return err
		}
	}
	if s.InstrumentalnessMin < 0 || s.InstrumentalnessMax > 1 || s.InstrumentalnessMin > s.InstrumentalnessMax {
		return fmt.Errorf("instrumentalness bounds must satisfy 0 <= min <= max <= 1")
	}
	if s.InstrumentalnessDecileWeight < -100 || s.InstrumentalnessDecileWeight > 100 {
		return fmt.Errorf("instrumentalness weight %d outside [-100,100]", s.InstrumentalnessDecileWeight)
	}
	if s.AlbumReleaseYearMin > s.AlbumReleaseYearMax {
		return fmt.Errorf("album_release_year min %d exceeds max %d", s.AlbumReleaseYearMin, s.AlbumReleaseYearMax)
	}
	if s.TrackIsExplicitMin < 0 || s.TrackIsExplicitMax > 1 || s.TrackIsExplicitMin > s.TrackIsExplicitMax {
		return fmt.Errorf("track_is_explicit bounds must be 0 or 1 with min <= max")
	}
	include := s.IncludeTerms()
	for _, ex := range s.ExcludeTerms() {
		for _, in := range include {
			if in == ex {
				return fmt.Errorf("genre %q both included and excluded", ex)
			}
		}
	}
	return nil
}

// IncludeTerms returns the lowered include-genre terms.
func (s FilterSpec) IncludeTerms() []string { return splitTerms(s.GenresIncludeAny) }

// ExcludeTerms returns the lowered exclude-genre terms.
func (s FilterSpec) ExcludeTerms() []string { return splitTerms(s.GenresExcludeAny) }

// BoostTerms returns the lowered boosted-genre terms.
func (s FilterSpec) BoostTerms() []string { return splitTerms(s.GenresBoosted) }

func splitTerms(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			terms = append(terms, p)
		}
	}
	return terms
}
