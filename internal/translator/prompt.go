package translator

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemInstructions = `You translate natural language music requests into a structured filter document for a track catalog.

The catalog covers tracks with audio features scored into deciles 1 (lowest) to 10 (highest) across the dataset:
- danceability, energy, acousticness, liveness, valence (musical positiveness), views (popularity)
Direct-valued features:
- loudness (dB, typically -60 to 0), tempo (BPM), duration_ms
- instrumentalness (0.0 to 1.0), album_release_year, track_is_explicit (0 or 1)
- spotify_artist_genres: comma separated genre labels matched by substring

Emit JSON only, matching the provided schema exactly.
Rules:
- Leave a bound at its wide-open value when the request does not constrain it: deciles [0,10], loudness/tempo/duration [-100, 99999999], instrumentalness [0.0, 1.0], years [1900, 2100], explicit [0, 1].
- Use decile weights (-100 to 100) to rank within the survivors; weight the features the request cares about most.
- Use spotify_artist_genres_include_any only for hard genre requirements, spotify_artist_genres_boosted for soft preferences, spotify_artist_genres_exclude_any to rule genres out. Comma separated, lowercase.
- Set reflection to a short note on your filter choices, and user_message to one friendly sentence describing what you searched for.
- Set continue_refinement to false only when you judge that no further filter adjustment would improve the result set.`

// initialPrompt renders the first-pass request for a fresh query.
func initialPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Translate this music request into a filter document.\n\n")
	fmt.Fprintf(&b, "Request: %s\n", query)
	return b.String()
}

// refinePrompt renders an automatic refinement pass: the model sees the
// filters it chose last time, a digest of what they returned, and a seed
// describing which direction to move in.
func refinePrompt(previousFilters, summary interface{}, seed string) (string, error) {
	filtersJSON, err := json.MarshalIndent(previousFilters, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling previous filters: %w", err)
	}
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling summary: %w", err)
	}
	var b strings.Builder
	b.WriteString("Adjust the filter document based on how the last pass went.\n\n")
	fmt.Fprintf(&b, "Previous filters:\n%s\n\n", filtersJSON)
	fmt.Fprintf(&b, "Result summary:\n%s\n\n", summaryJSON)
	if seed != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", seed)
	}
	b.WriteString("Return a complete filter document, not a delta. Keep what worked, change what did not.\n")
	return b.String(), nil
}

// userRefinePrompt renders a user-authored refinement of an existing session.
func userRefinePrompt(message string, previousFilters, summary interface{}) (string, error) {
	base, err := refinePrompt(previousFilters, summary, "")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("The user refined their request.\n\n")
	fmt.Fprintf(&b, "Refinement: %s\n\n", message)
	b.WriteString(base)
	return b.String(), nil
}
