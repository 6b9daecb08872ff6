package icled

// encode rebuilds the entire slot buffer from the pixel store: for each
// LED in index order, for each channel in wire order G,R,B, for each bit
// MSB down to LSB, one slot of Pwm1 or Pwm0, then ResetSlots idle slots
// for the latch gap. There is no partial-update path; Show always
// rewrites the whole buffer.
func (m *Matrix) encode() {
	pos := 0
	for i := 0; i < LedCount*3; i++ {
		v := m.pixels[i]
		for bit := 7; bit >= 0; bit-- {
			if v&(1<<uint(bit)) != 0 {
				m.slots[pos] = Pwm1
			} else {
				m.slots[pos] = Pwm0
			}
			pos++
		}
	}
	for ; pos < BufferLen; pos++ {
		m.slots[pos] = PwmIdle
	}
}
