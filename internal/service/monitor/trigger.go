package monitor

// Trigger schedules an out-of-band pass for phone while the scheduler runs.
// It returns false when the scheduler is stopped or a triggered pass for
// phone is still queued or running.
func (m *Monitor) Trigger(phone, reason string) bool {
	m.triggerMu.Lock()
	ctx := m.triggerCtx
	if ctx == nil || ctx.Err() != nil {
		m.triggerMu.Unlock()
		return false
	}
	if m.pending == nil {
		m.pending = make(map[string]struct{})
	}
	if _, ok := m.pending[phone]; ok {
		m.triggerMu.Unlock()
		m.log.Debugf("Pass for %s already pending, dropping %s trigger", phone, reason)
		return false
	}
	m.pending[phone] = struct{}{}
	m.schedulerWg.Add(1)
	m.triggerMu.Unlock()

	go func() {
		defer m.schedulerWg.Done()
		defer func() {
			m.triggerMu.Lock()
			delete(m.pending, phone)
			m.triggerMu.Unlock()
		}()

		m.log.Infof("Running pass for %s after %s update", phone, reason)
		if _, err := m.CheckWithRetry(ctx, phone); err != nil && ctx.Err() == nil {
			m.log.Warnf("Triggered pass for %s failed: %v", phone, err)
		}
	}()
	return true
}
