package turn

import "time"

// timeoutGuard bounds how long the controller may sit in EVALUATING_END.
// It is re-armed per turn; each arming carries a generation number so a fire
// that loses the race with a disarm is recognized as stale by the controller.
type timeoutGuard struct {
	timer *time.Timer
}

// arm schedules fire(gen) after d, replacing any previous timer.
func (g *timeoutGuard) arm(d time.Duration, gen uint64, fire func(gen uint64)) {
	g.disarm()
	g.timer = time.AfterFunc(d, func() { fire(gen) })
}

// disarm stops any outstanding timer. Stopping may lose against an already
// started fire; the generation check in the controller absorbs that race.
func (g *timeoutGuard) disarm() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
