package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/config"
)

func newViper() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	return v
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.RankCount)
	assert.Equal(t, 1, cfg.ThreadsPerRank)
	assert.EqualValues(t, 1, cfg.InterthreadMinLatency)
	assert.EqualValues(t, 1, cfg.MaxPeriod)
	assert.Equal(t, config.VariantSerial, cfg.Variant)
	assert.Empty(t, cfg.Links)
}

func TestLoadRejectsUnknownVariant(t *testing.T) {
	v := newViper()
	v.Set("variant", "bogus")
	_, err := config.Load(v)
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveRankCount(t *testing.T) {
	v := newViper()
	v.Set("rank_count", 0)
	_, err := config.Load(v)
	require.Error(t, err)
}

func TestLoadRejectsZeroLatencyCrossBoundaryLink(t *testing.T) {
	v := newViper()
	v.Set("links", []interface{}{
		map[string]interface{}{
			"tag":         1,
			"latency":     0,
			"from_rank":   0,
			"from_thread": 0,
			"to_rank":     1,
			"to_thread":   0,
		},
	})
	_, err := config.Load(v)
	require.Error(t, err)
}

func TestLoadAcceptsZeroLatencySelfLink(t *testing.T) {
	v := newViper()
	v.Set("links", []interface{}{
		map[string]interface{}{
			"tag":         1,
			"latency":     0,
			"from_rank":   0,
			"from_thread": 0,
			"to_rank":     0,
			"to_thread":   0,
		},
	})
	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Links, 1)
	assert.EqualValues(t, 0, cfg.Links[0].Latency)
}

func TestLoadParsesLinkSpecs(t *testing.T) {
	v := newViper()
	v.Set("links", []interface{}{
		map[string]interface{}{
			"tag":         7,
			"latency":     3,
			"from_rank":   0,
			"from_thread": 0,
			"to_rank":     1,
			"to_thread":   2,
		},
	})
	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Links, 1)

	spec := cfg.Links[0]
	assert.EqualValues(t, 7, spec.Tag)
	assert.EqualValues(t, 3, spec.Latency)
	assert.Equal(t, 0, spec.FromRank)
	assert.EqualValues(t, 0, spec.FromThread)
	assert.Equal(t, 1, spec.ToRank)
	assert.EqualValues(t, 2, spec.ToThread)
}
