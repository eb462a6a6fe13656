package audiolink

import (
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/observability/metrics"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

const wavReadSamples = 64 * 1024

// ReadWAV reads the first channel of a PCM WAV stream as 16-bit samples.
func ReadWAV(r io.ReadSeeker) (pcm []int16, sampleRate int, err error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, errors.Newf("input is not a valid WAV audio file").
			Component("audiolink").
			Category(errors.CategoryFileParsing).
			Build()
	}

	var shift uint
	switch decoder.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		return nil, 0, errors.Newf("unsupported bit depth: %d", decoder.BitDepth).
			Component("audiolink").
			Category(errors.CategoryFileParsing).
			Build()
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, 0, errors.Newf("unsupported number of channels: %d", channels).
			Component("audiolink").
			Category(errors.CategoryFileParsing).
			Build()
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadSamples*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, 0, errors.New(err).
				Component("audiolink").
				Category(errors.CategoryFileIO).
				Context("operation", "read_wav").
				Build()
		}
		if n == 0 {
			break
		}
		for i := 0; i < n; i += channels {
			pcm = append(pcm, int16(buf.Data[i]>>shift))
		}
	}
	return pcm, int(decoder.SampleRate), nil
}

// WriteWAV writes mono 16-bit PCM.
func WriteWAV(w io.WriteSeeker, pcm []int16, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	ints := make([]int, len(pcm))
	for i, s := range pcm {
		ints[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Data:           ints,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return errors.New(err).
			Component("audiolink").
			Category(errors.CategoryFileIO).
			Context("operation", "write_wav").
			Build()
	}
	if err := enc.Close(); err != nil {
		return errors.New(err).
			Component("audiolink").
			Category(errors.CategoryFileIO).
			Context("operation", "close_wav").
			Build()
	}
	return nil
}

// DecodeStats counts frame outcomes of an offline decode.
type DecodeStats struct {
	Valid     int
	Checksum  int
	Malformed int
}

// DecodePCM demodulates a recording. Samples are stamped with start plus
// the position of the frame in the recording.
func DecodePCM(pcm []int16, sampleRate int, cfg ModemConfig, start time.Time) (*timeseries.Ledger, DecodeStats, error) {
	var stats DecodeStats
	if sampleRate <= 0 {
		return nil, stats, errors.Newf("invalid sample rate %d", sampleRate).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}

	ledger := timeseries.NewLedger()
	var addErr error
	onFrame := func(f Frame, pos int64) {
		stats.Valid++
		offset := time.Duration(pos) * time.Second / time.Duration(sampleRate)
		s := timeseries.Sample{Temperature: f.Temperature, UnixTime: UnixSeconds(start.Add(offset))}
		if _, err := ledger.Add(f.DeviceID(), s); err != nil && addErr == nil {
			addErr = err
		}
	}
	onReject := func(reason string) {
		switch reason {
		case metrics.FrameChecksum:
			stats.Checksum++
		default:
			stats.Malformed++
		}
	}

	demod, err := NewDemodulator(cfg, onFrame, onReject)
	if err != nil {
		return nil, stats, err
	}
	demod.Write(pcm)
	return ledger, stats, addErr
}
