package session

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloads/portal/internal/models"
)

func TestFromContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	s := Session{ID: uuid.New(), Handle: "acme", Role: models.RoleAdvertiser}
	got, err := FromContext(WithContext(context.Background(), s))
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = FromContext(WithContext(context.Background(), Session{Handle: "acme", Role: models.RoleAdvertiser}))
	assert.ErrorIs(t, err, ErrNoSession, "nil id is malformed")

	_, err = FromContext(WithContext(context.Background(), Session{ID: uuid.New(), Handle: "acme", Role: "owner"}))
	assert.ErrorIs(t, err, ErrNoSession, "unknown role is malformed")
}

func TestAttachAndFromGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)

	_, err := FromGin(c)
	assert.ErrorIs(t, err, ErrNoSession)

	s := Session{ID: uuid.New(), Handle: "admin", Role: models.RoleAdmin}
	Attach(c, s)

	got, err := FromGin(c)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())

	fromReq, err := FromContext(c.Request.Context())
	require.NoError(t, err)
	assert.Equal(t, s.ID, fromReq.ID)
}

func TestFromAdvertiserDisplayName(t *testing.T) {
	a := &models.Advertiser{ID: uuid.New(), Handle: "shop", FullName: "Ravi", Role: models.RoleAdvertiser}
	assert.Equal(t, "Ravi", FromAdvertiser(a).DisplayName)
	a.BusinessName = "Ravi Stores"
	assert.Equal(t, "Ravi Stores", FromAdvertiser(a).DisplayName)
	a.BusinessName, a.FullName = "", ""
	assert.Equal(t, "shop", FromAdvertiser(a).DisplayName)
}
