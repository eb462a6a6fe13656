package reader

import (
	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/logger"
)

// LinkRecorder is the metrics sink for both directions of the link.
type LinkRecorder interface {
	audiolink.LinkRecorder
	audiolink.ToneRecorder
}

// linkFactory builds audiolink components on the session for the arbiter.
type linkFactory struct {
	session  audiosession.Session
	cfg      Config
	log      logger.Logger
	metrics  LinkRecorder
	onSample audiolink.SampleHandler
}

func (f *linkFactory) NewDecoder() (arbiter.Decoder, error) {
	opts := []audiolink.DecoderOption{
		audiolink.WithDecoderLogger(f.log.Module("decoder")),
	}
	if f.metrics != nil {
		opts = append(opts, audiolink.WithLinkRecorder(f.metrics))
	}
	if f.onSample != nil {
		opts = append(opts, audiolink.WithSampleHandler(f.onSample))
	}
	if f.cfg.DecoderBufferBytes > 0 {
		opts = append(opts, audiolink.WithBufferBytes(f.cfg.DecoderBufferBytes))
	}
	return audiolink.NewDecoder(f.session, f.cfg.Modem, opts...)
}

func (f *linkFactory) NewTone() (arbiter.Tone, error) {
	var rec audiolink.ToneRecorder
	if f.metrics != nil {
		rec = f.metrics
	}
	return audiolink.NewToneGenerator(f.session, f.cfg.Tone, f.log.Module("tone"), rec)
}
