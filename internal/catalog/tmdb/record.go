package tmdb

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Record is a normalized movie ready for upsert.
type Record struct {
	TMDBID           int64
	Title            string
	OriginalTitle    string
	Language         string
	OriginalLanguage string
	ReleaseDate      time.Time
	Genres           []string
	Runtime          *int
	Overview         string
	PosterURL        string
	BackdropURL      string
	VoteAverage      float64
	VoteCount        int
	Author           string
}

// DateRange is an inclusive discover window.
type DateRange struct {
	From string
	To   string
}

// Quarters splits year into the four discover windows.
func Quarters(year int) []DateRange {
	y := fmt.Sprintf("%04d", year)
	return []DateRange{
		{From: y + "-01-01", To: y + "-03-31"},
		{From: y + "-04-01", To: y + "-06-30"},
		{From: y + "-07-01", To: y + "-09-30"},
		{From: y + "-10-01", To: y + "-12-31"},
	}
}

// ValidateYear accepts years from 1900 through the current year.
func ValidateYear(year int, now time.Time) error {
	current := now.Year()
	if year < minYear || year > current {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("%d is outside %d..%d", year, minYear, current)}
	}
	return nil
}

type discoverResponse struct {
	Page         int              `json:"page"`
	Results      []discoverResult `json:"results"`
	TotalPages   int              `json:"total_pages"`
	TotalResults int              `json:"total_results"`
}

type discoverResult struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type movieDetails struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Runtime          *int    `json:"runtime"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	OriginalLanguage string  `json:"original_language"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits struct {
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

func (d movieDetails) normalize(imageBase string) (Record, error) {
	raw := strings.TrimSpace(d.ReleaseDate)
	if raw == "" {
		return Record{}, &ValidationError{Field: "release_date", Reason: "missing"}
	}
	released, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Record{}, &ValidationError{Field: "release_date", Reason: fmt.Sprintf("malformed %q", raw)}
	}

	var directors []string
	for _, member := range d.Credits.Crew {
		if strings.EqualFold(member.Job, "director") && member.Name != "" {
			directors = append(directors, member.Name)
		}
	}
	genres := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g.Name != "" {
			genres = append(genres, g.Name)
		}
	}

	return Record{
		TMDBID:           d.ID,
		Title:            d.Title,
		OriginalTitle:    d.OriginalTitle,
		Language:         d.OriginalLanguage,
		OriginalLanguage: d.OriginalLanguage,
		ReleaseDate:      released,
		Genres:           genres,
		Runtime:          d.Runtime,
		Overview:         d.Overview,
		PosterURL:        imageURL(imageBase, d.PosterPath),
		BackdropURL:      imageURL(imageBase, d.BackdropPath),
		VoteAverage:      d.VoteAverage,
		VoteCount:        d.VoteCount,
		Author:           strings.Join(directors, ", "),
	}, nil
}

func imageURL(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return base + path
}
