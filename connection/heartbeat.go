package connection

import (
	"github.com/VolantMQ/vlnats/packet"
)

// heartbeatRoutine emits INFO every heartbeat period.
// Period restarts whenever client supplies new connect info
func (s *impl) heartbeatRoutine() {
	timer := s.clock.NewTimer(s.heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-s.hbReset:
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}

			timer.Reset(s.heartbeat)
		case <-timer.Chan():
			if err := s.tx.send(&packet.Info{Info: s.serverInfo()}); err != nil {
				return
			}

			timer.Reset(s.heartbeat)
		}
	}
}

func (s *impl) resetHeartbeat() {
	select {
	case s.hbReset <- struct{}{}:
	default:
	}
}
