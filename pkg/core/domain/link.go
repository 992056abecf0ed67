package domain

import "time"

// Link represents a shortened URL
type Link struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	LongURL       string     `json:"long_url"`
	Clicks        int64      `json:"clicks"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LinkPage is one page of links, newest first, with the effective paging.
type LinkPage struct {
	Links []Link
	Total int64
	Page  int
	Limit int
}

// Stats holds the global counters of the link table
type Stats struct {
	TotalLinks  int64 `json:"total_links"`
	TotalClicks int64 `json:"total_clicks"`
}
