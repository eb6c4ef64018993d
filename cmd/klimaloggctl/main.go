// Command klimaloggctl pairs a Klimalogg USB transceiver, prints its
// current-weather snapshot at the configured polling interval, and
// optionally caches history and prints the cached records at each tick.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"github.com/weatherlogg/klimalogg/klog"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to host config YAML (optional; env KLIMALOGG_* always applies)")
		vid        = flag.Uint("vid", 0x6666, "USB vendor ID")
		pid        = flag.Uint("pid", 0x5555, "USB product ID")
		since      = flag.Duration("history-since", 0, "cache history back to now-duration and print it at each tick (0 disables)")
		debug      = flag.Bool("debug", false, "enable debug-level logging")
	)
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "klimaloggctl: logger setup:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	hc, err := klog.LoadHostConfig(*configPath)
	if err != nil {
		log.Fatalw("loading host config", "err", err)
	}

	engCfg, err := hc.ToEngineConfig()
	if err != nil {
		log.Fatalw("translating host config", "err", err)
	}

	drv, err := klog.Open(gousb.ID(*vid), gousb.ID(*pid), engCfg, log)
	if err != nil {
		log.Fatalw("opening transceiver", "err", err)
	}
	log.Infow("transceiver paired", "device_id", drv.GetDeviceID(), "serial", drv.GetSerial())

	if *since > 0 {
		drv.StartCachingHistory(time.Now().Add(-*since), 0)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(hc.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Infow("quitting due to signal", "signal", sig.String())
			if err := drv.Close(); err != nil {
				log.Errorw("closing transceiver", "err", err)
			}
			return

		case <-ticker.C:
			printSnapshot(log, drv)
		}
	}
}

func printSnapshot(log *zap.SugaredLogger, drv *klog.Driver) {
	if !drv.IsPresent() {
		log.Warnw("transceiver not responding")
		return
	}

	cur := drv.GetCurrentData()
	if cur == nil {
		log.Infow("no current-weather data yet")
		return
	}

	stat := drv.GetLastStat()
	fmt.Printf("signal=%d link_avg=%.1f seen=%s\n", cur.SignalQuality, stat.LastLinkQualityAvg, stat.LastSeen.Format(time.RFC3339))
	for slot := 0; slot < klog.NumSlots; slot++ {
		t := cur.Temperature[slot]
		h := cur.Humidity[slot]
		if t.Current.Absent && h.Current.Absent {
			continue
		}
		fmt.Printf("  slot %d: temp=%.1f hum=%.0f battery_low=%v\n",
			slot, t.Current.Value, h.Current.Value, cur.BatteryLow[slot])
	}

	if recs := drv.GetHistoryCacheRecords(); len(recs) > 0 {
		log.Infow("drained history records", "count", len(recs))
		for _, r := range recs {
			if ts, ok := r.Timestamp.Time(); ok {
				fmt.Printf("  history %s\n", ts.Format(time.RFC3339))
			}
		}
	}
}

// newLogger builds the single zap logger, console-encoded for the
// CLI the way the corpus's smaller tools configure zap for a terminal
// rather than a log-aggregation pipeline.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
