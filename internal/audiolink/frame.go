// Package audiolink implements the data and power channel of an audio-jack
// temperature probe: the zero-crossing FSK modem, the frame codec, the
// real-time decoder and the power tone generator.
package audiolink

import (
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"math"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("audiolink")
}

// Frame layout: sync (2) | uid length (1) | uid | temperature (2) | crc32 (4).
// Temperature is a signed big-endian count of tenths of a degree Fahrenheit.
// The CRC covers the length byte through the temperature.
const (
	syncByte0 = 0xA5
	syncByte1 = 0x5A

	MaxUIDLen = 16

	frameOverhead = 2 + 1 + 2 + 4
)

// Frame is one decoded reading before it is stamped with receive time.
type Frame struct {
	UID         []byte
	Temperature float32
}

// DeviceID is the lowercase hex form of the uid used as ledger key.
func (f Frame) DeviceID() string {
	return hex.EncodeToString(f.UID)
}

// EncodeFrame serializes a reading for transmission.
func EncodeFrame(uid []byte, temperature float32) ([]byte, error) {
	if len(uid) == 0 || len(uid) > MaxUIDLen {
		return nil, errors.Newf("uid length %d outside 1..%d", len(uid), MaxUIDLen).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}
	tenths := math.Round(float64(temperature) * 10)
	if tenths < math.MinInt16 || tenths > math.MaxInt16 || math.IsNaN(tenths) {
		return nil, errors.Newf("temperature %v not representable", temperature).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}

	out := make([]byte, 0, frameOverhead+len(uid))
	out = append(out, syncByte0, syncByte1, byte(len(uid)))
	out = append(out, uid...)
	out = binary.BigEndian.AppendUint16(out, uint16(int16(tenths)))
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[2:]))
	return out, nil
}

// frameParser reassembles frames from a byte stream. Garbage and frames
// failing validation are skipped by resynchronizing one byte later.
type frameParser struct {
	buf []byte
}

type parseResult int

const (
	parseNeedMore parseResult = iota
	parseFrame
	parseChecksum
	parseMalformed
)

func (p *frameParser) reset() {
	p.buf = p.buf[:0]
}

func (p *frameParser) push(b byte) {
	p.buf = append(p.buf, b)
}

// next extracts at most one frame from the buffered bytes.
func (p *frameParser) next() (Frame, parseResult) {
	for {
		// Drop everything before a sync candidate
		start := 0
		for start < len(p.buf) && p.buf[start] != syncByte0 {
			start++
		}
		if start > 0 {
			p.buf = append(p.buf[:0], p.buf[start:]...)
		}
		if len(p.buf) < 3 {
			return Frame{}, parseNeedMore
		}
		if p.buf[1] != syncByte1 {
			p.drop()
			continue
		}

		n := int(p.buf[2])
		if n == 0 || n > MaxUIDLen {
			p.drop()
			return Frame{}, parseMalformed
		}
		total := frameOverhead + n
		if len(p.buf) < total {
			return Frame{}, parseNeedMore
		}

		body := p.buf[2 : 3+n+2]
		want := binary.BigEndian.Uint32(p.buf[3+n+2 : total])
		if crc32.ChecksumIEEE(body) != want {
			p.drop()
			return Frame{}, parseChecksum
		}

		uid := make([]byte, n)
		copy(uid, p.buf[3:3+n])
		tenths := int16(binary.BigEndian.Uint16(p.buf[3+n : 3+n+2]))
		p.buf = append(p.buf[:0], p.buf[total:]...)

		return Frame{UID: uid, Temperature: float32(tenths) / 10}, parseFrame
	}
}

// drop discards the current sync candidate so the search restarts one byte later.
func (p *frameParser) drop() {
	p.buf = append(p.buf[:0], p.buf[1:]...)
}
