package klog

import (
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// HostConfig is the recognized host configuration surface (§6), loaded from
// a YAML file layered with environment overrides the way
// nasa-jpl-golaborate's golab config package composes koanf providers.
type HostConfig struct {
	TransceiverFrequency string `koanf:"transceiver_frequency"`
	Model                string `koanf:"model"`
	Serial               string `koanf:"serial"`
	CommInterval         int    `koanf:"comm_interval"`
	PollingInterval      int    `koanf:"polling_interval"`
	Timing               int    `koanf:"timing"`
	LimitRecReadTo       int    `koanf:"limit_rec_read_to"`

	DebugComm        int    `koanf:"debug_comm"`
	DebugConfigData  int    `koanf:"debug_config_data"`
	DebugWeatherData int    `koanf:"debug_weather_data"`
	DebugHistoryData int    `koanf:"debug_history_data"`
	DebugDumpFormat  string `koanf:"debug_dump_format"`

	SensorText [8]string         `koanf:"-"`
	SensorMap  map[string]string `koanf:"sensor_map"`
}

// defaultHostConfig seeds the §6 defaults before the file/env layers apply.
func defaultHostConfig() HostConfig {
	return HostConfig{
		TransceiverFrequency: "EU",
		CommInterval:         8,
		PollingInterval:      10,
		Timing:               300,
		LimitRecReadTo:       3001,
		DebugDumpFormat:      "auto",
	}
}

// LoadHostConfig reads path (YAML) and overlays environment variables
// prefixed KLIMALOGG_ (e.g. KLIMALOGG_COMM_INTERVAL), following the same
// layered koanf.Load sequence nasa-jpl-golaborate uses for its instrument
// configs. path may be empty to load defaults plus environment only.
func LoadHostConfig(path string) (*HostConfig, error) {
	k := koanf.New(".")

	def := defaultHostConfig()
	if err := k.Load(structProvider(def), nil); err != nil {
		return nil, errors.Wrap(err, "host config: load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "host config: load %s", path)
		}
	}

	if err := k.Load(env.Provider("KLIMALOGG_", ".", envKeyMap), nil); err != nil {
		return nil, errors.Wrap(err, "host config: load environment")
	}

	var hc HostConfig
	if err := k.Unmarshal("", &hc); err != nil {
		return nil, errors.Wrap(err, "host config: unmarshal")
	}

	for i := 0; i < 8; i++ {
		key := "sensor_text" + strconv.Itoa(i+1)
		if k.Exists(key) {
			hc.SensorText[i] = k.String(key)
		}
	}

	if err := hc.validate(); err != nil {
		return nil, err
	}
	return &hc, nil
}

// envKeyMap turns KLIMALOGG_COMM_INTERVAL into comm_interval, matching the
// struct's koanf tags.
func envKeyMap(s string) string {
	s = strings.TrimPrefix(s, "KLIMALOGG_")
	return strings.ToLower(s)
}

// validate rejects out-of-range values per §6's documented bounds rather
// than silently clamping them (§9's split of the original's silent-clamp
// testConfigChanged behavior extends to host config loading too).
func (hc *HostConfig) validate() error {
	if hc.TransceiverFrequency != "EU" && hc.TransceiverFrequency != "US" {
		return errors.Errorf("host config: transceiver_frequency must be EU or US, got %q", hc.TransceiverFrequency)
	}
	if hc.Timing < 100 || hc.Timing > 400 {
		return errors.Errorf("host config: timing must be in [100, 400]ms, got %d", hc.Timing)
	}
	if hc.LimitRecReadTo < 0 || hc.LimitRecReadTo > historySlots {
		return errors.Errorf("host config: limit_rec_read_to must be in [0, %d], got %d", historySlots, hc.LimitRecReadTo)
	}
	for i, t := range hc.SensorText {
		if t != "" && !ValidDescription(t) {
			return errors.Errorf("host config: sensor_text%d %q is not valid over the 64-symbol alphabet", i+1, t)
		}
	}
	switch hc.DebugDumpFormat {
	case "", "auto", "short", "long":
	default:
		return errors.Errorf("host config: debug_dump_format must be auto|short|long, got %q", hc.DebugDumpFormat)
	}
	return nil
}

// ToEngineConfig translates the host-facing surface into the engine's
// internal EngineConfig, resolving band/timing/limit knobs.
func (hc *HostConfig) ToEngineConfig() (EngineConfig, error) {
	band, err := ParseBand(hc.TransceiverFrequency)
	if err != nil {
		return EngineConfig{}, err
	}
	cfg := DefaultEngineConfig()
	cfg.Band = band
	cfg.Serial = hc.Serial
	cfg.CommInterval = hc.CommInterval
	cfg.FirstSleep = time.Duration(hc.Timing) * time.Millisecond
	cfg.LimitRecRead = hc.LimitRecReadTo
	return cfg, nil
}

// PollInterval is the facade-pull cadence a consumer should use.
func (hc *HostConfig) PollInterval() time.Duration {
	return time.Duration(hc.PollingInterval) * time.Second
}

// structProvider adapts a plain struct of defaults into a koanf.Provider
// via koanf's confmap provider, avoiding a hand-rolled reflect walk for the
// handful of scalar fields defaultHostConfig sets.
func structProvider(def HostConfig) koanf.Provider {
	return confmap.Provider(map[string]interface{}{
		"transceiver_frequency": def.TransceiverFrequency,
		"comm_interval":         def.CommInterval,
		"polling_interval":      def.PollingInterval,
		"timing":                def.Timing,
		"limit_rec_read_to":     def.LimitRecReadTo,
		"debug_dump_format":     def.DebugDumpFormat,
	}, ".")
}
