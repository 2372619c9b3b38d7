package numberpool

var NewMemoryCounterTTL = newMemoryCounter

func (m *MemoryCounter) Len() int {
	return m.counts.ItemCount()
}
