package klog

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// EngineConfig carries the host configuration options from §6 that shape
// the exchange engine's behavior.
type EngineConfig struct {
	Band              Band
	Serial            string
	CommInterval      int // seconds, default 8
	FirstSleep        time.Duration
	NextSleep         time.Duration
	LimitRecRead      int
	ArchiveInterval   time.Duration
}

// DefaultEngineConfig fills in the §6 defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Band:            BandEU,
		CommInterval:    8,
		FirstSleep:      300 * time.Millisecond,
		NextSleep:       10 * time.Millisecond,
		LimitRecRead:    3001,
		ArchiveInterval: 5 * time.Minute,
	}
}

// engine is the single-threaded, cooperative RF exchange state machine
// (§4.E). It owns the transport, the history cursor, and the last-seen
// config/current snapshots; the facade reads copies, never the live state.
type engine struct {
	t      *transport
	cfg    EngineConfig
	log    *zap.SugaredLogger
	nowFn  func() time.Time

	deviceID DeviceID
	serial   string
	paired   bool

	running bool

	current        *Current
	lastWeatherAt  time.Time
	receivedConfig *Config
	outgoing       *OutgoingConfig
	haveInBufCS    bool

	cursor HistoryCursor

	signalQualityAvg float64

	consecutiveTransportFailures int
	present                      bool

	lastStat LastStat
}

// LastStat is the facade's rolling communication-health snapshot.
type LastStat struct {
	LastLinkQuality    int
	LastLinkQualityAvg float64
	LastSeen           time.Time
}

func newEngine(t *transport, cfg EngineConfig, log *zap.SugaredLogger) *engine {
	return &engine{
		t:     t,
		cfg:   cfg,
		log:   log,
		nowFn: time.Now,
	}
}

// run is the cooperative loop body described in §4.E / §9: recv -> decode ->
// decide -> encode -> send, looping until running is cleared.
func (e *engine) run(stop <-chan struct{}) {
	e.running = true
	for e.running {
		select {
		case <-stop:
			e.running = false
			return
		default:
		}

		outbound, foreignBackoff, err := e.step()
		if err != nil {
			if _, ok := err.(*TransportError); ok {
				e.log.Errorw("transport error, backing off", "err", err)
				e.consecutiveTransportFailures++
				if e.consecutiveTransportFailures >= 3 {
					e.present = false
				}
				sleepOrStop(stop, 5*time.Second)
				continue
			}
			if IsDataWritten(err) {
				continue // RX already set by handler; no transmit this cycle
			}
			if _, ok := err.(*BadResponseError); ok {
				e.log.Warnw("bad response", "err", err)
				continue
			}
			if uerr, ok := err.(*UnknownDeviceIDError); ok {
				e.log.Debugw("ignoring foreign frame", "device_id", uerr.DeviceID)
				if e.cfg.Serial != "" {
					sleepOrStop(stop, 400*time.Millisecond)
				} else {
					sleepOrStop(stop, 75*time.Millisecond)
				}
				continue
			}
			e.log.Errorw("unhandled engine error", "err", err)
			continue
		}

		e.consecutiveTransportFailures = 0
		e.present = true

		if outbound != nil {
			if err := e.t.setFrame(outbound); err != nil {
				e.log.Errorw("set_frame failed", "err", err)
				sleepOrStop(stop, 5*time.Second)
				continue
			}
			if err := e.t.setTX(); err != nil {
				e.log.Errorw("set_tx failed", "err", err)
			}
		}
		_ = foreignBackoff
	}
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) {
	select {
	case <-stop:
	case <-time.After(d):
	}
}

// waitReady polls get_state until it reads stateReady, waiting up to
// FirstSleep before giving up for this tick (§4.E step 1, §5).
func (e *engine) waitReady() (bool, error) {
	deadline := e.nowFn().Add(e.cfg.FirstSleep)
	for {
		st, err := e.t.getState()
		if err != nil {
			return false, err
		}
		if st == stateReady {
			return true, nil
		}
		if e.nowFn().After(deadline) {
			return false, nil
		}
		time.Sleep(e.cfg.NextSleep)
	}
}

// step polls for a ready frame and dispatches it, returning the next
// outbound frame (or nil if none is to be sent this cycle).
func (e *engine) step() ([]byte, bool, error) {
	ready, err := e.waitReady()
	if err != nil {
		return nil, false, err
	}
	if !ready {
		return nil, false, nil
	}

	n, frame, err := e.t.getFrame()
	if err != nil {
		return nil, false, err
	}
	if n < 4 {
		return nil, false, &BadResponseError{Got: n, Want: 4}
	}

	devID := readDeviceID(frame)
	if devID == pairingDeviceID {
		e.log.Infow("console broadcasting pairing frame")
		return e.buildACK(actionGetConfig, unknownHistoryIndex), true, nil
	}
	if devID != e.deviceID {
		return nil, false, &UnknownDeviceIDError{DeviceID: uint16(devID)}
	}
	if !e.paired {
		e.paired = true
		e.log.Infow("paired with console", "device_id", devID)
	}

	rt := responseType(frame[3] & 0xF0)
	if frame[3] == byte(respFirstTimeConfig) {
		rt = respFirstTimeConfig
	} else if frame[3] == byte(respSetConfig) {
		rt = respSetConfig
	} else if frame[3] == byte(respSetTime) {
		rt = respSetTime
	}

	switch rt {
	case respDataWritten:
		if n != 7 {
			return nil, false, &BadResponseError{RespType: byte(rt), Got: n, Want: 7}
		}
		if err := e.t.setRX(); err != nil {
			return nil, false, err
		}
		return nil, false, errDataWritten

	case respGetConfig:
		if n != 125 {
			return nil, false, &BadResponseError{RespType: byte(rt), Got: n, Want: 125}
		}
		cfg := decodeConfig(frame)
		e.receivedConfig = cfg
		e.haveInBufCS = true
		if e.outgoing == nil {
			e.outgoing = NewOutgoingConfig(cfg)
		}
		out := e.buildACK(actionGetHistory, e.cursor.nextRequestIndex())
		return out, false, nil

	case respCurrentWeather:
		if n != 229 {
			return nil, false, &BadResponseError{RespType: byte(rt), Got: n, Want: 229}
		}
		now := e.nowFn()
		if e.lastWeatherAt.IsZero() || now.Sub(e.lastWeatherAt) >= time.Duration(e.cfg.CommInterval)*time.Second {
			cur := decodeCurrent(frame, e.current)
			e.current = cur
			e.lastWeatherAt = now
			e.lastStat = LastStat{
				LastLinkQuality:    cur.SignalQuality,
				LastSeen:           now,
				LastLinkQualityAvg: e.updateSignalAvg(cur.SignalQuality),
			}
		}
		return e.decideNextAfterWeather(devID == pairingDeviceID), false, nil

	case respHistory:
		if n != 181 {
			return nil, false, &BadResponseError{RespType: byte(rt), Got: n, Want: 181}
		}
		return e.handleHistory(frame), false, nil

	case respFirstTimeConfig:
		if n != 7 {
			return nil, false, &BadResponseError{RespType: byte(rt), Got: n, Want: 7}
		}
		out := buildWildcardGetConfig(e.cfg.CommInterval)
		return out, false, nil

	case respSetConfig:
		if e.outgoing == nil {
			return nil, false, nil
		}
		return e.outgoing.render(), false, nil

	case respSetTime:
		return buildSetTime(e.nowFn()), false, nil

	case respMemoryStatus:
		return nil, false, nil

	default:
		return nil, false, &BadResponseError{RespType: byte(rt), Got: n}
	}
}

func (e *engine) updateSignalAvg(sq int) float64 {
	const alpha = 0.2
	if e.signalQualityAvg == 0 {
		e.signalQualityAvg = float64(sq)
	} else {
		e.signalQualityAvg = alpha*float64(sq) + (1-alpha)*e.signalQualityAvg
	}
	return e.signalQualityAvg
}

// decideNextAfterWeather implements the §4.E decision tree run after every
// current-weather frame, then applies request morphing (§4.E, §8).
func (e *engine) decideNextAfterWeather(fromWildcard bool) []byte {
	var act action
	switch {
	case !e.haveInBufCS:
		act = actionGetConfig
	case e.outgoing != nil && e.outgoing.changed(e.receivedConfig.InBufCS):
		act = actionSetConfig
	default:
		act = actionGetHistory
	}

	if act == actionGetHistory {
		threshold := time.Duration(2*(e.cfg.CommInterval+1)) * time.Second
		if !fromWildcard && !e.lastWeatherAt.IsZero() && e.nowFn().Sub(e.lastWeatherAt) > threshold {
			act = actionGetCurrent
		}
	}

	idx := e.cursor.nextRequestIndex()
	if act != actionGetHistory {
		idx = unknownHistoryIndex
	}
	return e.buildACK(act, idx)
}

func (e *engine) handleHistory(frame []byte) []byte {
	payload := frame[4:]
	thisIndex := historyAddrToIndex(uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3]&0x0F))
	latestIndex := historyAddrToIndex(uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2]))

	if !e.cursor.active {
		return e.buildACK(actionGetCurrent, unknownHistoryIndex)
	}
	if !e.cursor.primed {
		e.cursor.primeFromFirstFrame(e.nowFn(), latestIndex, thisIndex)
	}

	slots := decodeHistoryFrame(payload[3:])
	e.cursor.acceptFrame(e.nowFn(), thisIndex, slots)

	if e.current != nil && len(slots) > 0 && !slots[0].IsAlarm && e.outgoing != nil {
		e.outgoing.applyClockAlarm(TimestampAt(e.nowFn()), slots[0].Record.Timestamp)
	}

	if e.cursor.complete() {
		return e.buildACK(actionGetCurrent, unknownHistoryIndex)
	}
	return e.buildACK(actionGetHistory, e.cursor.nextRequestIndex())
}

// buildACK builds the 11-byte ACK/request template (§4.E outbound
// templates). The two bytes of unknown meaning (§9), buf[6] and buf[7], are
// written as 0x80 and the comm interval byte.
func (e *engine) buildACK(act action, historyIndex int) []byte {
	buf := make([]byte, 11)
	writeDeviceID(buf, e.deviceID)
	buf[2] = 0 // LoggerID
	buf[3] = byte(act)
	buf[4] = byte(pairingCS >> 8)
	buf[5] = byte(pairingCS)
	buf[6] = 0x80
	buf[7] = byte(e.cfg.CommInterval)
	if historyIndex == unknownHistoryIndex {
		buf[8], buf[9], buf[10] = 0xFF, 0xFF, 0xFF
	} else {
		addr := historyIndexToAddr(historyIndex)
		buf[8] = byte(addr >> 16)
		buf[9] = byte(addr >> 8)
		buf[10] = byte(addr)
	}
	return buf
}

func buildWildcardGetConfig(commInterval int) []byte {
	buf := make([]byte, 11)
	writeDeviceID(buf, pairingDeviceID)
	buf[2] = 0xFF
	buf[3] = byte(actionGetConfig)
	buf[4], buf[5] = 0xFF, 0xFF
	buf[6] = 0x80 | byte(commInterval)
	addr := uint32(0x010700)
	buf[8] = byte(addr >> 16)
	buf[9] = byte(addr >> 8)
	buf[10] = byte(addr)
	return buf
}

// buildSetTime encodes local wall-clock into the 13-byte BCD-per-nibble
// layout from §4.E (sec, min, hour, day-lo|DoW, month-lo|day-hi,
// year-lo|month-hi, year-hi). DoW is Monday=1..Sunday=7.
func buildSetTime(now time.Time) []byte {
	buf := make([]byte, 13)
	bcd := func(v int) byte { return byte((v/10)<<4 | (v % 10)) }

	dow := int(now.Weekday())
	if dow == 0 {
		dow = 7
	}

	buf[3] = bcd(now.Second())
	buf[4] = bcd(now.Minute())
	buf[5] = bcd(now.Hour())
	buf[6] = byte(dow)<<4 | bcd(now.Day())&0x0F
	buf[7] = bcd(int(now.Month()))<<4&0xF0 | (bcd(now.Day())>>4)&0x0F
	year := now.Year() % 100
	buf[8] = bcd(year)<<4&0xF0 | (bcd(int(now.Month()))>>4)&0x0F
	buf[9] = byte(year / 100)
	return buf
}

// newBackoff returns an exponential backoff policy capped at 5s. The engine
// loop does not use it: run sleeps a fixed 5s after a TransportError.
func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // caller decides when to give up
	return b
}
