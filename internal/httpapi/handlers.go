package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// SampleResponse is a sample rendered in the requested scale.
type SampleResponse struct {
	Device      string  `json:"device,omitempty"`
	UnixTime    float64 `json:"unix_time"`
	Time        string  `json:"time"`
	Temperature float32 `json:"temperature"`
	Scale       string  `json:"scale"`
	Display     string  `json:"display"`
}

// DeviceResponse summarises one device store.
type DeviceResponse struct {
	UID          string          `json:"uid"`
	Samples      int             `json:"samples"`
	SampleRateHz float64         `json:"sample_rate_hz"`
	Earliest     *SampleResponse `json:"earliest,omitempty"`
	Latest       *SampleResponse `json:"latest,omitempty"`
}

// StatusResponse reports the audio arbiter.
type StatusResponse struct {
	State             string `json:"state"`
	AudioEnabled      bool   `json:"audio_enabled"`
	HeadsetPluggedIn  bool   `json:"headset_plugged_in"`
	NotificationDepth int    `json:"notification_depth"`
}

// InterpolateResponse answers an interpolation query. Interval is the gap
// between the bracketing samples, -1 when the time is outside the data.
type InterpolateResponse struct {
	UnixTime    float64 `json:"unix_time"`
	Temperature float32 `json:"temperature"`
	Interval    float64 `json:"interval"`
	Scale       string  `json:"scale"`
}

// TriggerResponse is the trigger configuration with its threshold in the
// requested scale.
type TriggerResponse struct {
	Temperature float32 `json:"temperature"`
	Direction   string  `json:"direction"`
	Scale       string  `json:"scale"`
}

// TriggerRequest replaces the trigger configuration.
type TriggerRequest struct {
	Temperature float32 `json:"temperature"`
	Direction   string  `json:"direction"`
	Scale       string  `json:"scale"`
}

func (s *Server) scale(c echo.Context) (temperature.Scale, error) {
	if q := c.QueryParam("scale"); q != "" {
		return temperature.ParseScale(q)
	}
	return s.data.Translator().Scale(), nil
}

func (s *Server) render(device string, sample timeseries.Sample, scale temperature.Scale) *SampleResponse {
	tr := s.data.Translator()
	whole, frac := math.Modf(sample.UnixTime)
	return &SampleResponse{
		Device:      device,
		UnixTime:    sample.UnixTime,
		Time:        time.Unix(int64(whole), int64(frac*1e9)).UTC().Format(time.RFC3339Nano),
		Temperature: tr.RoundIn(sample.Temperature, temperature.RawData, scale),
		Scale:       scale.String(),
		Display:     tr.PrintIn(sample.Temperature, temperature.HumanReadable, scale),
	}
}

func parseTime(c echo.Context, name string) (float64, error) {
	v, err := strconv.ParseFloat(c.QueryParam(name), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Newf("query parameter %q must be unix seconds", name).
			Component("httpapi").
			Category(errors.CategoryValidation).
			Build()
	}
	return v, nil
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, &StatusResponse{
		State:             s.audio.State().String(),
		AudioEnabled:      s.audio.IsAudioEnabled(),
		HeadsetPluggedIn:  s.audio.IsHeadsetPluggedIn(),
		NotificationDepth: s.audio.NotificationDepth(),
	})
}

func (s *Server) listDevices(c echo.Context) error {
	scale, err := s.scale(c)
	if err != nil {
		return s.handleError(c, err, "invalid scale", http.StatusBadRequest)
	}

	devices := []DeviceResponse{}
	s.data.View(func(l *timeseries.Ledger) {
		for _, uid := range l.DeviceIDs() {
			store, ok := l.Store(uid)
			if !ok {
				continue
			}
			d := DeviceResponse{UID: uid, Samples: store.Len(), SampleRateHz: store.SampleRateInHz()}
			if e, ok := store.Earliest(); ok {
				d.Earliest = s.render("", e, scale)
			}
			if l, ok := store.Latest(); ok {
				d.Latest = s.render("", l, scale)
			}
			devices = append(devices, d)
		}
	})
	return c.JSON(http.StatusOK, devices)
}

// storeReply is written to the client after the ledger is released.
type storeReply struct {
	code    int
	body    any
	err     error
	message string
}

func replyOK(body any) storeReply { return storeReply{code: http.StatusOK, body: body} }

func replyError(err error, message string, code int) storeReply {
	return storeReply{code: code, err: err, message: message}
}

// withStore runs fn on the store of the :uid path parameter.
func (s *Server) withStore(c echo.Context, fn func(*timeseries.Store, temperature.Scale) storeReply) error {
	scale, err := s.scale(c)
	if err != nil {
		return s.handleError(c, err, "invalid scale", http.StatusBadRequest)
	}
	uid := c.Param("uid")

	var r storeReply
	found := false
	s.data.View(func(l *timeseries.Ledger) {
		store, ok := l.Store(uid)
		if !ok {
			return
		}
		found = true
		r = fn(store, scale)
	})
	switch {
	case !found:
		return s.handleError(c, nil, "unknown device "+uid, http.StatusNotFound)
	case r.message != "":
		return s.handleError(c, r.err, r.message, r.code)
	}
	return c.JSON(r.code, r.body)
}

func (s *Server) latest(c echo.Context) error {
	return s.withStore(c, func(store *timeseries.Store, scale temperature.Scale) storeReply {
		sample, ok := store.Latest()
		if !ok {
			return replyError(timeseries.ErrStoreEmpty, "no samples", http.StatusNotFound)
		}
		return replyOK(s.render(store.UID(), sample, scale))
	})
}

func (s *Server) samples(c echo.Context) error {
	from, err := parseTime(c, "from")
	if err != nil {
		return s.handleError(c, err, "invalid from", http.StatusBadRequest)
	}
	to, err := parseTime(c, "to")
	if err != nil {
		return s.handleError(c, err, "invalid to", http.StatusBadRequest)
	}

	return s.withStore(c, func(store *timeseries.Store, scale temperature.Scale) storeReply {
		found, err := store.FindSamples(from, to)
		switch {
		case errors.IsNotFound(err):
			return replyOK([]SampleResponse{})
		case err != nil:
			return replyError(err, "invalid range", http.StatusBadRequest)
		}
		out := make([]*SampleResponse, len(found))
		for i, sample := range found {
			out[i] = s.render("", sample, scale)
		}
		return replyOK(out)
	})
}

func (s *Server) closest(c echo.Context) error {
	t, err := parseTime(c, "t")
	if err != nil {
		return s.handleError(c, err, "invalid t", http.StatusBadRequest)
	}
	return s.withStore(c, func(store *timeseries.Store, scale temperature.Scale) storeReply {
		sample, ok := store.Closest(t)
		if !ok {
			return replyError(timeseries.ErrStoreEmpty, "no samples", http.StatusNotFound)
		}
		return replyOK(s.render(store.UID(), sample, scale))
	})
}

func (s *Server) interpolate(c echo.Context) error {
	t, err := parseTime(c, "t")
	if err != nil {
		return s.handleError(c, err, "invalid t", http.StatusBadRequest)
	}
	tr := s.data.Translator()
	return s.withStore(c, func(store *timeseries.Store, scale temperature.Scale) storeReply {
		value, interval := store.Interpolate(t)
		return replyOK(&InterpolateResponse{
			UnixTime:    t,
			Temperature: tr.RoundIn(value, temperature.RawData, scale),
			Interval:    interval,
			Scale:       scale.String(),
		})
	})
}

func (s *Server) latestGap(c echo.Context) error {
	scale, err := s.scale(c)
	if err != nil {
		return s.handleError(c, err, "invalid scale", http.StatusBadRequest)
	}

	var (
		resp   *SampleResponse
		gapErr error
	)
	s.data.View(func(l *timeseries.Ledger) {
		sample, uid, err := l.EndOfLatestGap()
		if err != nil {
			gapErr = err
			return
		}
		resp = s.render(uid, sample, scale)
	})
	if gapErr != nil {
		return s.handleError(c, gapErr, "no gap", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getTrigger(c echo.Context) error {
	scale, err := s.scale(c)
	if err != nil {
		return s.handleError(c, err, "invalid scale", http.StatusBadRequest)
	}
	cfg := s.trigger.TriggerConfig()
	return c.JSON(http.StatusOK, &TriggerResponse{
		Temperature: s.data.Translator().RoundIn(cfg.Temperature, temperature.RawData, scale),
		Direction:   cfg.Direction.String(),
		Scale:       scale.String(),
	})
}

func (s *Server) putTrigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid body", http.StatusBadRequest)
	}
	dir, err := trigger.ParseDirection(req.Direction)
	if err == nil && dir == trigger.Unset {
		err = errors.Newf("trigger direction must be rising or falling").
			Component("httpapi").
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		return s.handleError(c, err, "invalid direction", http.StatusBadRequest)
	}
	scale := s.data.Translator().Scale()
	if req.Scale != "" {
		if scale, err = temperature.ParseScale(req.Scale); err != nil {
			return s.handleError(c, err, "invalid scale", http.StatusBadRequest)
		}
	}

	cfg := trigger.Config{
		Temperature: temperature.Convert(req.Temperature, scale, temperature.Fahrenheit),
		Direction:   dir,
	}
	if err := s.trigger.SetTriggerConfig(cfg); err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			return s.handleError(c, err, "invalid trigger", http.StatusBadRequest)
		}
		return s.handleError(c, err, "failed to store trigger", http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
