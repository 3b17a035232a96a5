package campaigns

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/reach"
)

const maxTitleLen = 120

// CanAfford reports whether a wallet balance covers a daily budget. Nothing is reserved or deducted.
func CanAfford(balance, budget int64) bool {
	return balance >= budget
}

// CreateRequest is the body for POST /campaigns. Exactly one video reference must be set.
type CreateRequest struct {
	Title          string `json:"title" binding:"required"`
	TargetURL      string `json:"target_url" binding:"required"`
	Placement      string `json:"placement" binding:"required"`
	Budget         int64  `json:"budget" binding:"required"`
	VideoURL       string `json:"video_url"`
	VideoKey       string `json:"video_key"`
	SourceVideoURL string `json:"source_video_url"`
}

var (
	errTitle     = errors.New("title must be 1-120 characters")
	errTarget    = errors.New("target_url must be an absolute http(s) URL")
	errPlacement = errors.New("placement must be one of Home Top, In-Shorts Feed, Search Top, Video Start")
	errVideo     = errors.New("provide exactly one of video_url, video_key, source_video_url")
	errVideoURL  = errors.New("video URL must be an absolute http(s) URL")
)

// normalize trims the request and checks every field except video ownership, returning the reach estimate.
func (r *CreateRequest) normalize() (models.ReachRange, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.TargetURL = strings.TrimSpace(r.TargetURL)
	r.Placement = strings.TrimSpace(r.Placement)
	r.VideoURL = strings.TrimSpace(r.VideoURL)
	r.VideoKey = strings.TrimSpace(r.VideoKey)
	r.SourceVideoURL = strings.TrimSpace(r.SourceVideoURL)

	if r.Title == "" || len([]rune(r.Title)) > maxTitleLen {
		return models.ReachRange{}, errTitle
	}
	if !isHTTPURL(r.TargetURL) {
		return models.ReachRange{}, errTarget
	}
	if !models.Placement(r.Placement).Valid() {
		return models.ReachRange{}, errPlacement
	}
	est, err := reach.Estimate(r.Budget)
	if err != nil {
		return models.ReachRange{}, err
	}
	set := 0
	for _, v := range []string{r.VideoURL, r.VideoKey, r.SourceVideoURL} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return models.ReachRange{}, errVideo
	}
	if r.VideoURL != "" && !isHTTPURL(r.VideoURL) {
		return models.ReachRange{}, errVideoURL
	}
	if r.SourceVideoURL != "" && !isHTTPURL(r.SourceVideoURL) {
		return models.ReachRange{}, errVideoURL
	}
	return est, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
