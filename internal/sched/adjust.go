// internal/sched/adjust.go

package sched

// adjust recomputes e's class, priorities and timeslice. It runs whenever e
// leaves the active slot or wakes from the wait list (woke). The caller holds
// rq.mu and rq must be e's owning queue.
//
// It reports whether the caller has to switch away from e even if e would
// still outrank everything ready.
func (s *Scheduler) adjust(rq *runQueue, e *entity, woke bool) bool {
	// others is the ready priority of everyone but e
	others := rq.totalReadyPriority
	if e.accounted {
		others -= int64(e.priority)
	}
	rq.totalReadyPriority = others
	e.accounted = false

	bonus := 0
	if woke {
		bonus = BonusSleep
	}
	age := rq.tick - e.birth
	if age < 0 {
		age = 0
	}

	force := false
	switch util := e.utilization(); {
	case age < s.cfg.GraceTicks:
		// too young to judge
		e.priority = TierBase + e.nice
		e.schedPriority = e.priority
		e.timeslice = s.cfg.BaseTimeslice

	case util <= InteractiveUtilization && e.h.ticksRunning > s.cfg.BaseTimeslice:
		e.class = ClassInteractive
		e.priority = TierInteractive + e.nice + bonus
		e.schedPriority = e.priority
		e.timeslice = s.cfg.NormalTimeslice

	case util >= BatchUtilization:
		e.class = ClassBatch
		e.priority = TierBatch + e.nice
		force = s.balance(rq, e, age, others)

	default:
		e.priority = TierBase + e.nice + bonus
		e.schedPriority = e.priority
		e.timeslice = s.cfg.BaseTimeslice
	}

	rq.totalReadyPriority += int64(e.priority)
	e.accounted = true
	return force
}

// balance compares a batch entity's running time against its fair share of
// the queue's elapsed time and penalizes or boosts it.
func (s *Scheduler) balance(rq *runQueue, e *entity, age, others int64) bool {
	share := float64(age)
	if total := others + int64(e.priority); total > 0 {
		share = float64(age) * float64(e.priority) / float64(total)
	}
	running := float64(e.h.ticksRunning)
	tol := float64(FairTolerance) / 100

	switch {
	case running > share*(1+tol):
		// Sink below every ready entity without touching the others: each
		// penalty digs one level under the lowest key handed out so far.
		e.h.unfairCount++
		e.timeslice = s.cfg.BatchTimeslice
		rq.lowest--
		e.schedPriority = rq.lowest
		s.logger.Debug("penalized", "cpu", rq.cpu, "task", e.task.ID,
			"running", e.h.ticksRunning, "share", share, "sched_priority", e.schedPriority)
		s.emitEntity(rq, EventPenalize, e)
		return true

	case running < share*(1-tol):
		e.schedPriority = TierBatch + e.nice + BonusBoost
		e.timeslice = max(int64(share-running), s.cfg.BatchTimeslice)
	}
	return false
}
