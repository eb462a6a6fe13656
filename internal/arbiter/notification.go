package arbiter

import (
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/logger"
)

// PrepareForAudioNotification makes the speaker available for a short sound
// effect. Calls nest; only the outermost one pauses the link and overrides
// the route to the built-in speaker. A false result means the caller must
// not play the effect and must not call CleanUpAfterAudioNotification.
func (a *Arbiter) PrepareForAudioNotification() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.Enabled() {
		a.log.Debug("notification refused", logger.String("state", a.state.String()))
		return false
	}

	if a.notificationDepth == 0 {
		wasStarted := a.state == Started
		a.pauseLocked()
		if err := a.session.OverrideRoute(audiosession.OverrideSpeaker); err != nil {
			a.log.Warn("failed to route output to speaker", logger.Error(err))
			if wasStarted {
				if err := a.startLocked(); err != nil {
					a.log.Warn("failed to resume link", logger.Error(err))
				}
			}
			return false
		}
		a.resumeAfterNotify = wasStarted
	}

	a.notificationDepth++
	a.metrics.SetNotificationDepth(a.notificationDepth)
	return true
}

// CleanUpAfterAudioNotification undoes one successful prepare. The outermost
// cleanup restores the route and resumes the link. Unpaired calls are
// ignored and the depth never drops below zero.
func (a *Arbiter) CleanUpAfterAudioNotification() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.notificationDepth == 0 {
		a.log.Warn("notification cleanup without prepare")
		return
	}
	a.notificationDepth--
	a.metrics.SetNotificationDepth(a.notificationDepth)
	if a.notificationDepth > 0 || !a.state.Enabled() {
		return
	}

	if err := a.session.OverrideRoute(audiosession.OverrideNone); err != nil {
		a.log.Warn("failed to restore output route", logger.Error(err))
	}
	resume := a.resumeAfterNotify
	a.resumeAfterNotify = false
	if resume {
		if err := a.startLocked(); err != nil {
			a.log.Warn("failed to resume link after notification", logger.Error(err))
		}
	}
}
