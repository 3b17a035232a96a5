package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gloads/portal/config"
	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/testsupport"
	"github.com/gloads/portal/pkg/queue"
)

func testContext(cfg *config.Config) *commandContext {
	ctx := defaultCommandContext()
	ctx.loadConfig = func() (*config.Config, error) { return cfg, nil }
	ctx.newLogger = func(string) *zap.Logger { return zap.NewNop() }
	return ctx
}

func runCLI(t *testing.T, ctx *commandContext, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReachDoesNotNeedConfig(t *testing.T) {
	ctx := defaultCommandContext()
	ctx.loadConfig = func() (*config.Config, error) { return nil, errors.New("no env") }

	out, err := runCLI(t, ctx, "reach", "500")
	require.NoError(t, err)
	assert.Contains(t, out, "₹500/day")
	assert.Contains(t, out, "4500 - 5500 views")
}

func TestReachRejectsInvalidBudgets(t *testing.T) {
	ctx := testContext(&config.Config{})
	_, err := runCLI(t, ctx, "reach", "75")
	assert.Error(t, err)
	_, err = runCLI(t, ctx, "reach", "505")
	assert.Error(t, err)
	_, err = runCLI(t, ctx, "reach", "lots")
	assert.Error(t, err)
}

func TestMigrateUsesDSN(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "postgres://u:p@db:5432/gloads"}}
	ctx := testContext(cfg)
	var up, down []string
	ctx.migrateUp = func(dsn string) error { up = append(up, dsn); return nil }
	ctx.migrateDown = func(dsn string) error { down = append(down, dsn); return nil }

	out, err := runCLI(t, ctx, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied")
	out, err = runCLI(t, ctx, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back")

	assert.Equal(t, []string{cfg.Database.URL}, up)
	assert.Equal(t, []string{cfg.Database.URL}, down)
}

func TestConfigErrorStopsCommands(t *testing.T) {
	ctx := defaultCommandContext()
	ctx.loadConfig = func() (*config.Config, error) { return nil, errors.New("UPI_ID must not be empty") }
	ctx.migrateUp = func(string) error { t.Fatal("migrate ran without config"); return nil }

	_, err := runCLI(t, ctx, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPI_ID")
}

func TestAdminCreateAndPromote(t *testing.T) {
	db := testsupport.NewDB()
	store := db.Advertisers()
	cfg := &config.Config{Admin: config.AdminConfig{Email: "ops@gloads.local"}}
	ctx := testContext(cfg)
	closed := 0
	ctx.openAccounts = func(context.Context, *config.Config, *zap.Logger) (auth.Store, func(), error) {
		return store, func() { closed++ }, nil
	}

	out, err := runCLI(t, ctx, "admin", "create", "--handle", "@Founder", "--password", "s3cret!")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin @founder ready")
	assert.Equal(t, 1, closed)

	adv, err := store.GetByHandle(context.Background(), "founder")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, adv.Role)
	assert.Equal(t, "ops@gloads.local", adv.Email)

	_, err = store.Create(context.Background(), auth.CreateParams{Handle: "shopkeeper", Email: "s@x.in", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = runCLI(t, ctx, "admin", "create", "--handle", "shopkeeper", "--password", "another1")
	require.NoError(t, err)
	promoted, err := store.GetByHandle(context.Background(), "shopkeeper")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)
}

func TestAdminCreateValidation(t *testing.T) {
	ctx := testContext(&config.Config{})
	ctx.openAccounts = func(context.Context, *config.Config, *zap.Logger) (auth.Store, func(), error) {
		return testsupport.NewDB().Advertisers(), func() {}, nil
	}

	_, err := runCLI(t, ctx, "admin", "create", "--handle", "founder")
	assert.Error(t, err, "password flag is required")
	_, err = runCLI(t, ctx, "admin", "create", "--handle", "founder", "--password", "123")
	assert.Error(t, err)
	_, err = runCLI(t, ctx, "admin", "create", "--handle", "no spaces", "--password", "123456")
	assert.Error(t, err)
}

func TestQueueDLQ(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := testContext(&config.Config{})
	ctx.openQueue = func(context.Context, *config.Config, *zap.Logger) (deadLetterReader, func(), error) {
		return queue.NewQueue(rdb, zap.NewNop()), func() {}, nil
	}

	out, err := runCLI(t, ctx, "queue", "dlq")
	require.NoError(t, err)
	assert.Contains(t, out, "Dead letters: none")

	job := queue.Job{ID: "job-1", Type: queue.JobTypeVideoImport, Attempt: 3, CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), queue.QueueDLQ, raw).Err())

	out, err = runCLI(t, ctx, "queue", "dlq", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Dead letters: 1")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "video_import")
	assert.Contains(t, out, "attempts=3")

	_, err = runCLI(t, ctx, "queue", "dlq", "--limit", "0")
	assert.Error(t, err)
}
