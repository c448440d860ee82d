package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slavierouse/sound-your-scene/internal/job"
	"github.com/slavierouse/sound-your-scene/internal/scoring"
	"github.com/slavierouse/sound-your-scene/internal/store"
)

type createJobRequest struct {
	Query     string `json:"query"`
	ImageData string `json:"image_data,omitempty"`
}

type refineRequest struct {
	Message string `json:"message"`
}

type jobResponse struct {
	JobID           string           `json:"job_id"`
	Status          job.Status       `json:"status"`
	Query           string           `json:"query"`
	UserRefinements int              `json:"user_refinements"`
	ResultCount     int              `json:"result_count"`
	ResultSummary   *scoring.Summary `json:"result_summary,omitempty"`
	UserMessage     string           `json:"user_message,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Steps           []stepResponse   `json:"steps"`
	Results         []trackResult    `json:"results,omitempty"`
}

type stepResponse struct {
	StepNumber  int          `json:"step_number"`
	StepType    job.StepType `json:"step_type"`
	Query       string       `json:"query,omitempty"`
	TargetRange [2]int       `json:"target_range"`
	ResultCount int          `json:"result_count"`
	UserMessage string       `json:"user_message,omitempty"`
}

type trackResult struct {
	RankPosition   int     `json:"rank_position"`
	TrackID        string  `json:"track_id"`
	RelevanceScore float64 `json:"relevance_score"`
	TrackName      string  `json:"track_name"`
	ArtistNames    string  `json:"artist_names"`
	AlbumName      string  `json:"album_name,omitempty"`
	ReleaseYear    int     `json:"album_release_year"`
	Genres         string  `json:"spotify_artist_genres,omitempty"`
	SpotifyURL     string  `json:"spotify_url,omitempty"`
	YoutubeURL     string  `json:"youtube_url,omitempty"`
}

func (s *Server) handleCreateJob(c echo.Context) error {
	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" && req.ImageData == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	j, err := s.orchestrator.CreateJob(c.Request().Context(), req.Query, req.ImageData)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, s.jobView(c, j))
}

func (s *Server) handleGetJob(c echo.Context) error {
	j, err := s.orchestrator.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.jobView(c, j))
}

func (s *Server) handleRefine(c echo.Context) error {
	var req refineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	j, err := s.orchestrator.AppendRefinement(c.Request().Context(), c.Param("id"), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, s.jobView(c, j))
}

func (s *Server) handleCancel(c echo.Context) error {
	j, err := s.orchestrator.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.jobView(c, j))
}

// jobView projects a job record into its API shape, joining the final
// results with catalog track details once the job is done.
func (s *Server) jobView(c echo.Context, j *job.SearchJob) jobResponse {
	resp := jobResponse{
		JobID:           j.ID,
		Status:          j.Status,
		Query:           j.Query,
		UserRefinements: j.UserRefinements,
		ResultCount:     j.ResultCount,
		ResultSummary:   j.ResultSummary,
		UserMessage:     j.UserMessage,
		ErrorMessage:    j.ErrorMessage,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
		Steps:           make([]stepResponse, 0, len(j.Steps)),
	}
	for _, step := range j.Steps {
		resp.Steps = append(resp.Steps, stepResponse{
			StepNumber:  step.StepNumber,
			StepType:    step.StepType,
			Query:       step.Query,
			TargetRange: step.TargetRange,
			ResultCount: step.ResultCount,
			UserMessage: step.UserMessage,
		})
	}

	if j.Status != job.StatusDone {
		return resp
	}
	results, err := s.orchestrator.GetResults(c.Request().Context(), j.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("job %s: loading results: %v", j.ID, err)
		}
		return resp
	}
	resp.Results = make([]trackResult, 0, len(results))
	for _, r := range results {
		tr := trackResult{
			RankPosition:   r.RankPosition,
			TrackID:        r.TrackID,
			RelevanceScore: r.RelevanceScore,
		}
		if track, ok := s.catalog.ByID(r.TrackID); ok {
			tr.TrackName = track.TrackName
			tr.ArtistNames = track.ArtistNames
			tr.AlbumName = track.AlbumName
			tr.ReleaseYear = track.AlbumReleaseYear
			tr.Genres = track.Genres
			tr.SpotifyURL = track.SpotifyURL
			tr.YoutubeURL = track.YoutubeURL
		}
		resp.Results = append(resp.Results, tr)
	}
	return resp
}
