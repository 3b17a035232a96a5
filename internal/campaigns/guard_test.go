package campaigns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloads/portal/internal/reach"
)

func TestCanAfford(t *testing.T) {
	assert.True(t, CanAfford(500, 500))
	assert.True(t, CanAfford(1000, 500))
	assert.False(t, CanAfford(500, 600))
	assert.False(t, CanAfford(0, 80))
}

func validRequest() CreateRequest {
	return CreateRequest{
		Title:     " Diwali Sale ",
		TargetURL: "https://acme.test/sale",
		Placement: "Home Top",
		Budget:    500,
		VideoURL:  "https://cdn.acme.test/ad.mp4",
	}
}

func TestNormalize(t *testing.T) {
	r := validRequest()
	est, err := r.normalize()
	require.NoError(t, err)
	assert.Equal(t, "Diwali Sale", r.Title)
	assert.Equal(t, int64(4500), est.Min)
	assert.Equal(t, int64(5500), est.Max)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]func(r *CreateRequest){
		"empty title":       func(r *CreateRequest) { r.Title = "  " },
		"relative target":   func(r *CreateRequest) { r.TargetURL = "/sale" },
		"ftp target":        func(r *CreateRequest) { r.TargetURL = "ftp://acme.test" },
		"unknown placement": func(r *CreateRequest) { r.Placement = "Sidebar" },
		"no video":          func(r *CreateRequest) { r.VideoURL = "" },
		"two videos":        func(r *CreateRequest) { r.VideoKey = "videos/x/y.mp4" },
		"bad video url":     func(r *CreateRequest) { r.VideoURL = "not a url" },
	}
	for name, mutate := range cases {
		r := validRequest()
		mutate(&r)
		_, err := r.normalize()
		assert.Error(t, err, name)
	}

	r := validRequest()
	r.Budget = 85
	_, err := r.normalize()
	assert.ErrorIs(t, err, reach.ErrBudgetStep)
	r.Budget = 10010
	_, err = r.normalize()
	assert.ErrorIs(t, err, reach.ErrBudgetOutOfRange)
}
