package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotisTheo/LotLogic-sub001/internal/app"
	"github.com/PhotisTheo/LotLogic-sub001/internal/config"
)

func TestResolveTownsFromManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "towns.yaml")
	body := `
towns:
  - id: 42
    name: springfield
    feed: feeds/springfield.csv
  - id: 43
    name: shelbyville
    feed: feeds/shelbyville.csv
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cmd := newComputeCmd()
	require.NoError(t, cmd.Flags().Set("towns", path))

	towns, err := resolveTowns(cmd)
	require.NoError(t, err)
	require.Len(t, towns, 2)
	assert.Equal(t, app.TownBatch{ID: 42, Name: "springfield", FeedPath: "feeds/springfield.csv"}, towns[0])
	assert.Equal(t, 43, towns[1].ID)
}

func TestResolveTownsManifestValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "towns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("towns:\n  - name: nofeed\n"), 0o644))

	cmd := newComputeCmd()
	require.NoError(t, cmd.Flags().Set("towns", path))

	_, err := resolveTowns(cmd)
	assert.Error(t, err)
}

func TestResolveTownsSingleTownMode(t *testing.T) {
	cmd := newComputeCmd()
	require.NoError(t, cmd.Flags().Set("town-id", "7"))
	require.NoError(t, cmd.Flags().Set("feed", "feeds/town7.csv"))

	towns, err := resolveTowns(cmd)
	require.NoError(t, err)
	require.Len(t, towns, 1)
	assert.Equal(t, app.TownBatch{ID: 7, FeedPath: "feeds/town7.csv"}, towns[0])
}

func TestResolveTownsNothingGiven(t *testing.T) {
	towns, err := resolveTowns(newComputeCmd())
	require.NoError(t, err)
	assert.Empty(t, towns)
}

func TestApplyOverrides(t *testing.T) {
	cmd := newComputeCmd()
	require.NoError(t, cmd.Flags().Set("lookback-days", "180"))
	require.NoError(t, cmd.Flags().Set("batch-size", "250"))

	cfg := config.Default()
	applyOverrides(cmd, &cfg)
	assert.Equal(t, 180, cfg.Engine.LookbackDays)
	assert.Equal(t, 250, cfg.Storage.BatchSize)
	assert.Equal(t, config.Default().Engine.TargetCompCount, cfg.Engine.TargetCompCount)
}
