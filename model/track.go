package model

import (
	"errors"
	"strings"
	"time"
)

// Track represents an audio track in the radio catalog.
type Track struct {
	ID         uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title      string     `json:"title" gorm:"size:255;not null"`
	Artist     string     `json:"artist" gorm:"size:255;not null;index"`
	Genre      string     `json:"genre" gorm:"size:100"`
	// 音频地址，/media/... 或外部 URL
	MediaURL   string     `json:"url" gorm:"size:767;not null"`
	ArtworkURL string     `json:"artwork" gorm:"size:767"`
	Duration   int        `json:"duration" gorm:"not null;default:0"` // seconds
	IsActive   bool       `json:"isActive" gorm:"index;default:true"`
	PlayCount  int64      `json:"playCount" gorm:"not null;default:0"`
	LastPlayed *time.Time `json:"lastPlayed" gorm:"index"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// Length returns the track duration as a time.Duration.
func (t Track) Length() time.Duration {
	return time.Duration(t.Duration) * time.Second
}

// TrackInput 创建曲目的请求数据
type TrackInput struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Genre      string `json:"genre"`
	MediaURL   string `json:"url"`
	ArtworkURL string `json:"artwork"`
	Duration   int    `json:"duration"`
}

var (
	ErrTitleRequired    = errors.New("title is required")
	ErrArtistRequired   = errors.New("artist is required")
	ErrNegativeDuration = errors.New("duration must not be negative")
)

// Validate trims the text fields in place and checks required values.
func (in *TrackInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Artist = strings.TrimSpace(in.Artist)
	in.Genre = strings.TrimSpace(in.Genre)
	in.MediaURL = strings.TrimSpace(in.MediaURL)
	in.ArtworkURL = strings.TrimSpace(in.ArtworkURL)

	if in.Title == "" {
		return ErrTitleRequired
	}
	if in.Artist == "" {
		return ErrArtistRequired
	}
	if in.Duration < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// ToTrack builds a new active Track from the input.
func (in TrackInput) ToTrack() *Track {
	return &Track{
		Title:      in.Title,
		Artist:     in.Artist,
		Genre:      in.Genre,
		MediaURL:   in.MediaURL,
		ArtworkURL: in.ArtworkURL,
		Duration:   in.Duration,
		IsActive:   true,
	}
}
