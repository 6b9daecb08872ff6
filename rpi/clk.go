package rpi

// Clock manager registers for the PWM clock. See p105ff.
const (
	CM_CLK_CTL_PASSWD   = 0x5a << 24
	CM_CLK_CTL_MASH1    = 1 << 9
	CM_CLK_CTL_BUSY     = 1 << 7
	CM_CLK_CTL_KILL     = 1 << 5
	CM_CLK_CTL_ENAB     = 1 << 4
	CM_CLK_CTL_SRC_OSC  = 1 << 0
	CM_CLK_CTL_SRC_PLLD = 6 << 0
	CM_CLK_DIV_PASSWD   = uint32(0x5a << 24)

	// PLLD runs at a fixed 500MHz (750MHz on the Pi 4) regardless of the
	// crystal, which the PWM clock divider then brings down to
	// period*bitrate.
	PLLD_FREQ     = 500000000
	PLLD_FREQ_PI4 = 750000000
)

type cmClkT struct {
	ctl uint32
	div uint32
}
