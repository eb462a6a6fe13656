package arbiter

import (
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/logger"
)

// CheckAndFixPowerVolume raises the output volume to maximum when it is too
// low to power the accessory and reports whether a correction was made. The
// first pre-correction volume of each route is kept for restoration.
func (a *Arbiter) CheckAndFixPowerVolume() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkAndFixVolumeLocked()
}

func (a *Arbiter) checkAndFixVolumeLocked() bool {
	if !a.state.Enabled() || a.notificationDepth > 0 {
		return false
	}

	route := a.session.CurrentRoute()
	volume := a.session.OutputVolume()
	if volume >= a.cfg.RequiredVolume {
		return false
	}

	if _, recorded := a.userVolumes[route]; !recorded {
		a.userVolumes[route] = volume
	}
	if err := a.session.SetOutputVolume(1); err != nil {
		a.log.Warn("failed to raise output volume",
			logger.String("route", route.String()),
			logger.Error(err))
		return false
	}

	a.metrics.RecordVolumeCorrection(route.String())
	a.log.Info("output volume raised to power accessory",
		logger.String("route", route.String()),
		logger.Float32("previous", volume))
	return true
}

// ReturnToUserVolume restores the volumes recorded before corrections.
func (a *Arbiter) ReturnToUserVolume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.returnToUserVolumeLocked()
}

// PrepareForAppQuitting restores every recorded volume. It may be called in
// any state and never fails.
func (a *Arbiter) PrepareForAppQuitting() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.returnToUserVolumeLocked()
	a.log.Debug("prepared for quitting", logger.String("state", a.state.String()))
}

// returnToUserVolumeLocked restores the current route and, when the session
// allows it, every other recorded route. Routes that cannot be set now stay
// recorded.
func (a *Arbiter) returnToUserVolumeLocked() {
	setter, perRoute := a.session.(routeVolumeSetter)
	current := a.session.CurrentRoute()

	for route, v := range a.userVolumes {
		switch {
		case route == current:
			if err := a.session.SetOutputVolume(v); err != nil {
				a.log.Warn("failed to restore volume",
					logger.String("route", route.String()),
					logger.Error(err))
				continue
			}
		case perRoute:
			setter.SetRouteVolume(route, v)
		default:
			continue
		}
		delete(a.userVolumes, route)
	}
}

// UserVolume returns the recorded pre-correction volume of route.
func (a *Arbiter) UserVolume(route audiosession.Route) (float32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.userVolumes[route]
	return v, ok
}
