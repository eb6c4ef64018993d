package klog

import (
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Default vendor/product IDs for the transceiver dongle (§6).
const (
	DefaultVendorID  = 0x6666
	DefaultProductID = 0x5555

	usbInterfaceNum = 0
	usbTimeout      = 1 * time.Second

	// Control transfer request codes (§6): type CLASS|RECIP_INTERFACE,
	// request 0x09 out / 0x01 in.
	reqOut = 0x09
	reqIn  = 0x01

	// valueSetFrame is the outbound `value` field for SetFrame transfers.
	valueSetFrame = 0x03D5
)

// transport is the USB control-transfer surface the exchange engine drives.
// It mirrors the teacher's single-struct-over-one-port device wrapper, but
// talks control transfers instead of a byte stream.
type transport struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	iface  *gousb.Interface
	done   func()
	log    *zap.SugaredLogger
	serial string
}

// openTransport opens the first dongle matching (vid, pid) and closes any
// other matches. When wantSerial is set it reads the opened dongle's serial
// from config-flash at 0x1F9 (7 BCD-packed bytes) and only logs a warning on
// a mismatch; other matching dongles are not tried.
func openTransport(vid, pid gousb.ID, wantSerial string, log *zap.SugaredLogger) (*transport, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	if err != nil {
		ctx.Close()
		return nil, wrapTransport("open_devices", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, wrapTransport("open", errors.Errorf("no device matching vid=%s pid=%s", vid, pid))
	}

	dev := devs[0]
	for _, d := range devs[1:] {
		d.Close()
	}

	if err := dev.SetAutoDetach(true); err != nil {
		log.Warnw("failed to enable auto kernel-driver detach", "err", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, wrapTransport("config", err)
	}
	iface, err := cfg.Interface(usbInterfaceNum, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, wrapTransport("claim_interface", err)
	}

	t := &transport{
		ctx:   ctx,
		dev:   dev,
		iface: iface,
		done: func() {
			iface.Close()
			cfg.Close()
		},
		log: log,
	}

	// Quiesce the dongle: a fixed sequence of descriptor reads separated by
	// ~50ms, matching the vendor tool's bring-up sequence.
	for i := 0; i < 3; i++ {
		_, _ = t.readConfigFlash(0x1F9, 7)
		time.Sleep(50 * time.Millisecond)
	}

	if wantSerial != "" {
		sn, err := t.readSerialString()
		if err == nil && sn != wantSerial {
			log.Warnw("opened transceiver serial mismatch", "want", wantSerial, "got", sn)
		}
	}

	return t, nil
}

func (t *transport) close() error {
	if t.done != nil {
		t.done()
	}
	err := t.dev.Close()
	t.ctx.Close()
	return err
}

func (t *transport) control(out bool, request uint8, value, index uint16, data []byte) (int, error) {
	rt := uint8(gousb.ControlClass | gousb.ControlInterface)
	if out {
		rt |= uint8(gousb.ControlOut)
	} else {
		rt |= uint8(gousb.ControlIn)
	}
	return t.dev.Control(rt, request, value, index, data)
}

// getState reads the transceiver's single status byte.
func (t *transport) getState() (byte, error) {
	buf := make([]byte, 1)
	_, err := t.control(false, reqIn, 0x0000, uint16(usbInterfaceNum), buf)
	if err != nil {
		return 0, wrapTransport("get_state", err)
	}
	return buf[0], nil
}

// stateReady is the "ready-to-deliver" state byte the engine polls for.
const stateReady = 0x16

// getFrame reads the current inbound frame and its declared length.
func (t *transport) getFrame() (int, []byte, error) {
	buf := make([]byte, maxLargeFrame)
	n, err := t.control(false, reqIn, 0x0001, uint16(usbInterfaceNum), buf)
	if err != nil {
		return 0, nil, wrapTransport("get_frame", err)
	}
	return n, buf[:n], nil
}

// setFrame writes an outbound frame for the transceiver to transmit.
func (t *transport) setFrame(frame []byte) error {
	_, err := t.control(true, reqOut, valueSetFrame, uint16(usbInterfaceNum), frame)
	return wrapTransport("set_frame", err)
}

// setRX/setTX flip the transceiver's radio direction.
func (t *transport) setRX() error {
	_, err := t.control(true, reqOut, 0x00D0, uint16(usbInterfaceNum), nil)
	return wrapTransport("set_rx", err)
}

func (t *transport) setTX() error {
	_, err := t.control(true, reqOut, 0x00D1, uint16(usbInterfaceNum), nil)
	return wrapTransport("set_tx", err)
}

// setState writes the transceiver's one-byte state register.
func (t *transport) setState(b byte) error {
	_, err := t.control(true, reqOut, 0x00D7, uint16(usbInterfaceNum), []byte{b})
	return wrapTransport("set_state", err)
}

// readConfigFlash reads n bytes starting at addr from the dongle's
// configuration flash.
func (t *transport) readConfigFlash(addr uint16, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := t.control(false, reqIn, 0x0000, addr, buf)
	if err != nil {
		return nil, wrapTransport("read_config_flash", err)
	}
	return buf, nil
}

// writeReg programs one radio register.
func (t *transport) writeReg(reg, val byte) error {
	_, err := t.control(true, reqOut, uint16(reg)<<8|uint16(val), uint16(usbInterfaceNum), nil)
	return wrapTransport("write_reg", err)
}

// execute issues a one-byte command to the transceiver's command register.
func (t *transport) execute(cmd byte) error {
	_, err := t.control(true, reqOut, uint16(cmd), uint16(usbInterfaceNum), nil)
	return wrapTransport("execute", err)
}

// setPreamble configures the RF preamble byte.
func (t *transport) setPreamble(b byte) error {
	_, err := t.control(true, reqOut, 0x00D2, uint16(b), nil)
	return wrapTransport("set_preamble", err)
}

// readSerialString reads the 7-byte BCD serial at 0x1F9 and formats it as 14
// decimal digits, per §4.A.
func (t *transport) readSerialString() (string, error) {
	buf, err := t.readConfigFlash(0x1F9, 7)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, 14)
	for _, b := range buf {
		out = append(out, '0'+(b>>4), '0'+(b&0xF))
	}
	return string(out), nil
}
