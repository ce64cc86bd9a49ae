package opensubtitles

import "time"

// Candidate is one subtitle file offered by a search.
type Candidate struct {
	SubtitleID        string    `json:"subtitle_id"`
	FileID            int64     `json:"file_id"`
	FileName          string    `json:"file_name"`
	Language          string    `json:"language"`
	Release           string    `json:"release"`
	DownloadCount     int       `json:"download_count"`
	Votes             int       `json:"votes"`
	Ratings           float64   `json:"ratings"`
	HD                bool      `json:"hd"`
	HearingImpaired   bool      `json:"hearing_impaired"`
	FromTrusted       bool      `json:"from_trusted"`
	MachineTranslated bool      `json:"machine_translated"`
	AITranslated      bool      `json:"ai_translated"`
	FeatureTitle      string    `json:"feature_title,omitempty"`
	FeatureYear       int       `json:"feature_year,omitempty"`
	UploadDate        time.Time `json:"upload_date,omitzero"`
}

// SearchRequest filters a subtitle search.
type SearchRequest struct {
	TMDBID    int64
	Languages []string
	Query     string
}

// SearchResponse bundles the candidates returned by a query.
type SearchResponse struct {
	Candidates []Candidate
	Total      int
}

// LoginResult reports the session token and download allowance.
type LoginResult struct {
	Token            string
	AllowedDownloads int
}

// DownloadOptions controls subtitle downloads.
type DownloadOptions struct {
	Format string
}

// DownloadResult carries the subtitle payload and the account quota left.
type DownloadResult struct {
	Data      []byte
	FileName  string
	Remaining int
	ResetTime string
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		AllowedDownloads int `json:"allowed_downloads"`
	} `json:"user"`
}

type searchResponse struct {
	TotalCount int `json:"total_count"`
	Data       []struct {
		ID         string           `json:"id"`
		Attributes searchAttributes `json:"attributes"`
	} `json:"data"`
}

type searchAttributes struct {
	Language          string  `json:"language"`
	Release           string  `json:"release"`
	DownloadCount     int     `json:"download_count"`
	Votes             int     `json:"votes"`
	Ratings           float64 `json:"ratings"`
	HearingImpaired   bool    `json:"hearing_impaired"`
	HD                bool    `json:"hd"`
	FromTrusted       bool    `json:"from_trusted"`
	AITranslated      bool    `json:"ai_translated"`
	MachineTranslated bool    `json:"machine_translated"`
	UploadDate        string  `json:"upload_date"`
	FeatureDetails    struct {
		Title string `json:"title"`
		Year  int    `json:"year"`
	} `json:"feature_details"`
	Files []struct {
		FileID   int64  `json:"file_id"`
		FileName string `json:"file_name"`
	} `json:"files"`
}

type downloadResponse struct {
	Link      string `json:"link"`
	FileName  string `json:"file_name"`
	Requests  int    `json:"requests"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
	ResetTime string `json:"reset_time_utc"`
}
