// Package config loads the sync core's static wire-up configuration: rank
// count, threads per rank, per-link latency/tag, inter-thread minimum
// latency, max_period, and which RankSync variant to instantiate. CLI flag
// parsing and the component/model description are external collaborators
// per spec.md §1; this package only resolves the numbers the sync core
// itself needs.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
)

// Variant selects which RankSync design a rank instantiates.
type Variant string

const (
	VariantSerial   Variant = "serial"
	VariantParallel Variant = "parallel"
)

// LinkSpec describes one statically wired-up Link, enough to construct it
// and register it with the right ThreadSync or RankSync.
type LinkSpec struct {
	Tag        uint32
	Latency    uint64
	FromRank   int
	FromThread uint32
	ToRank     int
	ToThread   uint32
}

// Config is the fully resolved, validated sync-core configuration.
type Config struct {
	RankCount             int
	ThreadsPerRank        int
	InterthreadMinLatency uint64
	MaxPeriod             uint64
	Variant               Variant
	Links                 []LinkSpec
}

// SetDefaults installs the sync core's default values onto v, mirroring the
// teacher's pattern of seeding a *viper.Viper with SetDefault calls before
// a config file or environment overrides are applied.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rank_count", 1)
	v.SetDefault("threads_per_rank", 1)
	v.SetDefault("interthread_min_latency", 1)
	v.SetDefault("max_period", 1)
	v.SetDefault("variant", string(VariantSerial))
}

// Load resolves and validates a Config from an already-populated viper
// instance. Callers typically construct v with viper.New(), call
// SetDefaults, then v.ReadInConfig()/v.BindEnv() before calling Load.
func Load(v *viper.Viper) (*Config, error) {
	variant := Variant(v.GetString("variant"))
	if variant != VariantSerial && variant != VariantParallel {
		return nil, errors.Wrapf(syncerr.ErrConfiguration, "config: unknown rank_sync variant %q", variant)
	}

	cfg := &Config{
		RankCount:             v.GetInt("rank_count"),
		ThreadsPerRank:        v.GetInt("threads_per_rank"),
		InterthreadMinLatency: v.GetUint64("interthread_min_latency"),
		MaxPeriod:             v.GetUint64("max_period"),
		Variant:               variant,
	}
	if cfg.RankCount < 1 {
		return nil, errors.Wrapf(syncerr.ErrConfiguration, "config: rank_count must be >= 1, got %d", cfg.RankCount)
	}
	if cfg.ThreadsPerRank < 1 {
		return nil, errors.Wrapf(syncerr.ErrConfiguration, "config: threads_per_rank must be >= 1, got %d", cfg.ThreadsPerRank)
	}

	var links []LinkSpec
	raw, ok := v.Get("links").([]interface{})
	if ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Wrap(syncerr.ErrConfiguration, "config: malformed links entry")
			}
			spec, err := parseLinkSpec(m)
			if err != nil {
				return nil, err
			}
			if spec.Latency == 0 && (spec.FromRank != spec.ToRank || spec.FromThread != spec.ToThread) {
				return nil, errors.Wrapf(syncerr.ErrConfiguration, "config: link tag=%d crosses a synchronization boundary with zero latency", spec.Tag)
			}
			links = append(links, spec)
		}
	}
	cfg.Links = links

	return cfg, nil
}

func parseLinkSpec(m map[string]interface{}) (LinkSpec, error) {
	var spec LinkSpec
	tag, err := toUint32(m["tag"])
	if err != nil {
		return spec, errors.Wrap(syncerr.ErrConfiguration, "config: link.tag: "+err.Error())
	}
	latency, err := toUint64(m["latency"])
	if err != nil {
		return spec, errors.Wrap(syncerr.ErrConfiguration, "config: link.latency: "+err.Error())
	}
	fromRank, err := toInt(m["from_rank"])
	if err != nil {
		return spec, errors.Wrap(syncerr.ErrConfiguration, "config: link.from_rank: "+err.Error())
	}
	fromThread, err := toUint32(m["from_thread"])
	if err != nil {
		return spec, errors.Wrap(syncerr.ErrConfiguration, "config: link.from_thread: "+err.Error())
	}
	toRank, err := toInt(m["to_rank"])
	if err != nil {
		return spec, errors.Wrap(syncerr.ErrConfiguration, "config: link.to_rank: "+err.Error())
	}
	toThread, err := toUint32(m["to_thread"])
	if err != nil {
		return spec, errors.Wrap(syncerr.ErrConfiguration, "config: link.to_thread: "+err.Error())
	}
	return LinkSpec{
		Tag:        tag,
		Latency:    latency,
		FromRank:   fromRank,
		FromThread: fromThread,
		ToRank:     toRank,
		ToThread:   toThread,
	}, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errors.New("expected integer")
	}
}

func toUint32(v interface{}) (uint32, error) {
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func toUint64(v interface{}) (uint64, error) {
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
