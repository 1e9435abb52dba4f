package state

// SetPaused toggles the pause flag of a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if paused {
		return m.KVPut(pauseKey(module), true)
	}
	return m.KVDelete(pauseKey(module))
}

// IsPaused satisfies nativecommon.PauseView. Read failures report paused.
func (m *Manager) IsPaused(module string) bool {
	paused, err := m.KVHas(pauseKey(module))
	if err != nil {
		return true
	}
	return paused
}
