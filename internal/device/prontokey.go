package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// ProntoKey is a serial macro pad with a 3x3 key grid and two sliders.
const (
	ProntoKeyName     = "ProntoKey"
	ProntoKeyType     = 7
	ProntoKeyBaudRate = 57600

	prontoKeyReadTimeout = 10 * time.Millisecond
	prontoKeyMaxBuffer   = 64 * 1024
)

// ProntoKeyLayout is the fixed layout of every ProntoKey.
var ProntoKeyLayout = Layout{Rows: 3, Columns: 3, Dials: 2}

// ProntoKeyInfo returns the device info for the pad with the given address.
func ProntoKeyInfo(address string) Info {
	return Info{
		ID:     "pk-" + address,
		Name:   ProntoKeyName,
		Type:   ProntoKeyType,
		Layout: ProntoKeyLayout,
	}
}

// prontoKeyMessage is one JSON object sent by the pad. Every field is
// optional; the pad only sends what changed.
type prontoKeyMessage struct {
	Address *string `json:"address"`
	Key     *int    `json:"key"`
	Slider0 *int    `json:"slider0"`
	Slider1 *int    `json:"slider1"`
}

// ProntoKeyDecoder turns the pad's byte stream into inputs. The pad writes
// back-to-back JSON objects with no separator; the decoder buffers until a
// closing brace and drops anything it cannot parse.
type ProntoKeyDecoder struct {
	buf     []byte
	info    *Info
	lastKey int
	sliders [2]int
}

// Info returns the device once the pad has announced its address.
func (d *ProntoKeyDecoder) Info() (Info, bool) {
	if d.info == nil {
		return Info{}, false
	}
	return *d.info, true
}

// Feed consumes raw bytes. registered is set when this chunk carried the
// address that identifies the pad.
func (d *ProntoKeyDecoder) Feed(data []byte) (inputs []Input, registered *Info) {
	d.buf = append(d.buf, data...)

	for {
		end := bytes.IndexByte(d.buf, '}')
		if end < 0 {
			break
		}
		chunk := bytes.TrimSpace(d.buf[:end+1])
		d.buf = d.buf[end+1:]

		var msg prontoKeyMessage
		if err := json.Unmarshal(chunk, &msg); err != nil {
			slog.Debug("prontokey: dropping malformed chunk", "chunk", string(chunk), "error", err)
			continue
		}

		if d.info == nil {
			if msg.Address != nil {
				info := ProntoKeyInfo(*msg.Address)
				d.info = &info
				registered = &info
			}
			continue
		}

		inputs = append(inputs, d.handle(msg)...)
	}

	if len(d.buf) > prontoKeyMaxBuffer {
		d.buf = d.buf[:0]
	}
	return inputs, registered
}

func (d *ProntoKeyDecoder) handle(msg prontoKeyMessage) []Input {
	id := d.info.ID
	var out []Input

	if msg.Key != nil {
		if *msg.Key == 0 {
			out = append(out, Input{Device: id, Kind: KeyUp, Index: d.lastKey})
		} else if *msg.Key > 0 {
			d.lastKey = *msg.Key - 1
			out = append(out, Input{Device: id, Kind: KeyDown, Index: d.lastKey})
		}
	}

	for i, v := range []*int{msg.Slider0, msg.Slider1} {
		if v == nil {
			continue
		}
		delta := *v - d.sliders[i]
		d.sliders[i] = *v
		if delta != 0 {
			out = append(out, Input{Device: id, Kind: DialRotate, Index: i, Ticks: delta})
		}
	}
	return out
}

// Port is the subset of a serial port the driver uses.
type Port interface {
	io.ReadWriteCloser
}

// OpenPort opens a serial port the way the ProntoKey expects.
func OpenPort(name string) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: ProntoKeyBaudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(prontoKeyReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// RunProntoKey drives a pad on an open port until ctx is cancelled or the
// port fails. The device is added to reg once it identifies itself and
// removed when RunProntoKey returns. The port is closed on return.
func RunProntoKey(ctx context.Context, port Port, reg *Registry, sink Sink) error {
	defer port.Close()

	if _, err := port.Write([]byte("register")); err != nil {
		return fmt.Errorf("prontokey register: %w", err)
	}

	// Close the port on cancel so a blocked Read returns.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	var dec ProntoKeyDecoder
	defer func() {
		if info, ok := dec.Info(); ok {
			reg.Remove(info.ID)
		}
	}()

	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if n > 0 {
			inputs, registered := dec.Feed(buf[:n])
			if registered != nil {
				slog.Info("device connected", "device", registered.ID, "name", registered.Name)
				reg.Add(*registered)
			}
			for _, in := range inputs {
				sink(in)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("prontokey read: %w", err)
		}
	}
}
