package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TierConfig is the on-disk shape of a tier in tiers.yml.
type TierConfig struct {
	Code       string `mapstructure:"code"`
	Label      string `mapstructure:"label"`
	Price      int64  `mapstructure:"price"`
	MemoryMB   int    `mapstructure:"memory_mb"`
	DiskMB     int    `mapstructure:"disk_mb"`
	CPUPercent int    `mapstructure:"cpu_percent"`
}

const defaultPrice = 500

// DefaultTiers returns the built-in catalog: 1gb..10gb and unlimited.
func DefaultTiers() []TierConfig {
	tiers := make([]TierConfig, 0, 11)
	for n := 1; n <= 10; n++ {
		tiers = append(tiers, TierConfig{
			Code:       fmt.Sprintf("%dgb", n),
			Label:      fmt.Sprintf("%dGB", n),
			Price:      defaultPrice,
			MemoryMB:   n * 1024,
			DiskMB:     n * 1024,
			CPUPercent: 40 + (n-1)*20,
		})
	}
	tiers = append(tiers, TierConfig{
		Code:  string(orderdomain.TierUnlimited),
		Label: "UNLI",
		Price: defaultPrice,
	})
	return tiers
}

type snapshot struct {
	byCode  map[orderdomain.TierCode]orderdomain.Tier
	ordered []orderdomain.Tier
}

// Holder keeps the current validated catalog and swaps it on config reload.
type Holder struct {
	current atomic.Pointer[snapshot]
}

var Module = fx.Module("catalog",
	fx.Provide(
		NewHolder,
		func(h *Holder) orderdomain.TierCatalog { return h },
	),
)

func NewHolder(log *zap.Logger) (*Holder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("catalog")

	v := viper.New()
	v.SetConfigName("tiers")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/novacat")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NOVACAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
		v.SetDefault("tiers", DefaultTiers())
	}

	tiers, err := decode(v)
	if err != nil {
		return nil, err
	}
	snap, err := build(tiers)
	if err != nil {
		return nil, err
	}

	holder := &Holder{}
	holder.current.Store(snap)
	log.Info("tier catalog loaded", zap.Int("tiers", len(snap.ordered)), zap.Bool("from_file", fromFile))

	if fromFile {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decode(v)
			if err != nil {
				log.Warn("tier catalog reload failed", zap.String("file", e.Name), zap.Error(err))
				return
			}
			snap, err := build(updated)
			if err != nil {
				log.Warn("invalid tier catalog ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(snap)
			log.Info("tier catalog reloaded", zap.String("file", e.Name), zap.Int("tiers", len(snap.ordered)))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStatic builds a holder from fixed tiers without touching the filesystem.
func NewStatic(tiers []TierConfig) (*Holder, error) {
	snap, err := build(tiers)
	if err != nil {
		return nil, err
	}
	holder := &Holder{}
	holder.current.Store(snap)
	return holder, nil
}

func (h *Holder) Lookup(code orderdomain.TierCode) (orderdomain.Tier, bool) {
	snap := h.current.Load()
	if snap == nil {
		return orderdomain.Tier{}, false
	}
	tier, ok := snap.byCode[orderdomain.NormalizeTierCode(string(code))]
	return tier, ok
}

func (h *Holder) List() []orderdomain.Tier {
	snap := h.current.Load()
	if snap == nil {
		return nil
	}
	return append([]orderdomain.Tier(nil), snap.ordered...)
}

func decode(v *viper.Viper) ([]TierConfig, error) {
	var tiers []TierConfig
	if err := v.UnmarshalKey("tiers", &tiers); err != nil {
		return nil, err
	}
	for i := range tiers {
		key := "price_" + strings.ToLower(strings.TrimSpace(tiers[i].Code))
		if override := v.GetInt64(key); override != 0 {
			tiers[i].Price = override
		}
	}
	return tiers, nil
}

func build(tiers []TierConfig) (*snapshot, error) {
	if err := Validate(tiers); err != nil {
		return nil, err
	}
	snap := &snapshot{
		byCode:  make(map[orderdomain.TierCode]orderdomain.Tier, len(tiers)),
		ordered: make([]orderdomain.Tier, 0, len(tiers)),
	}
	for _, cfg := range tiers {
		code := orderdomain.NormalizeTierCode(cfg.Code)
		label := strings.TrimSpace(cfg.Label)
		if label == "" {
			label = strings.ToUpper(string(code))
		}
		tier := orderdomain.Tier{
			Code:  code,
			Label: label,
			Price: cfg.Price,
			Limits: orderdomain.ResourceLimits{
				MemoryMB:   cfg.MemoryMB,
				DiskMB:     cfg.DiskMB,
				CPUPercent: cfg.CPUPercent,
			},
		}
		snap.byCode[code] = tier
		snap.ordered = append(snap.ordered, tier)
	}
	return snap, nil
}

// Validate rejects empty catalogs, duplicate codes, non-positive prices and negative limits.
func Validate(tiers []TierConfig) error {
	if len(tiers) == 0 {
		return errors.New("tiers cannot be empty")
	}
	seen := make(map[orderdomain.TierCode]struct{}, len(tiers))
	for i, tier := range tiers {
		code := orderdomain.NormalizeTierCode(tier.Code)
		if code == "" {
			return fmt.Errorf("tiers[%d]: code is required", i)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("tiers[%d]: duplicate code %q", i, code)
		}
		seen[code] = struct{}{}
		if tier.Price <= 0 {
			return fmt.Errorf("tier %q: price must be positive", code)
		}
		if tier.MemoryMB < 0 || tier.DiskMB < 0 || tier.CPUPercent < 0 {
			return fmt.Errorf("tier %q: limits cannot be negative", code)
		}
	}
	return nil
}
