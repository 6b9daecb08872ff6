package rpi

import (
	"fmt"
	"log"
	"time"
	"unsafe"
)

// Mapping of PWM channel/pin numbers to which "alt" function means "PWM". See p102 of datasheet.
var pwmPinToAlt = map[pwmPin]int{
	{0, 12}: 0,
	{0, 18}: 5,
	{0, 40}: 0,
	{1, 13}: 0,
	{1, 19}: 0,
	{1, 41}: 0,
	{1, 45}: 0,
}

type pwmPin struct {
	channel int
	pin     int
}

const (
	RPI_PWM_CTL_MSEN1 = 1 << 7
	RPI_PWM_CTL_CLRF1 = 1 << 6
	RPI_PWM_CTL_USEF1 = 1 << 5
	RPI_PWM_CTL_MODE1 = 1 << 1
	RPI_PWM_CTL_PWEN1 = 1 << 0
	RPI_PWM_DMAC_ENAB = uint32(1 << 31)
)

// pwmT is the PWM register block. See p141.
type pwmT struct {
	ctl        uint32
	sta        uint32
	dmac       uint32
	resvd_0x0c uint32
	rng1       uint32
	dat1       uint32
	fif1       uint32
	resvd_0x1c uint32
	rng2       uint32
	dat2       uint32
}

func cmClkDivI(val uint32) uint32 {
	return (val & 0xfff) << 12
}

func cmClkDivF(val uint32) uint32 {
	return val & 0xfff
}

func rpiPwmDmacPanic(val uint32) uint32 {
	return (val & 0xff) << 8
}

func rpiPwmDmacDreq(val uint32) uint32 {
	return (val & 0xff) << 0
}

func rpiDmaTiPerMap(val uint32) uint32 {
	return (val & 0x1f) << 16
}

// InitPWM sets up PWM channel 1 to clock out one duty-compare word per
// bit period: the clock manager divides PLLD down to period ticks per
// 1/freq seconds, the channel runs in mark-space mode over a range of
// period, and each FIFO word - fed by DMA from buf - is the compare
// value for one period. It also readies buf's control block for the
// PWM FIFO, chained to itself so the transfer loops until stopped.
func (rp *RPi) InitPWM(freq uint, period uint32, buf *DMABuf, words uint, pin int) error {
	alt, ok := pwmPinToAlt[pwmPin{0, pin}]
	if !ok {
		return fmt.Errorf("invalid pin %d for PWM channel 0", pin)
	}
	err := rp.gpioSetAltFunction(pin, alt)
	if err != nil {
		return fmt.Errorf("couldn't mux pin %d: %v", pin, err)
	}

	if rp.pwmBuf == nil {
		var bufOffs uintptr
		rp.pwmBuf, bufOffs, err = rp.mapMem(PWM_OFFSET+rp.hw.periphBase, int(unsafe.Sizeof(pwmT{})))
		if err != nil {
			return fmt.Errorf("couldn't map pwmT at %08X: %v", PWM_OFFSET+rp.hw.periphBase, err)
		}
		log.Printf("Got pwmBuf[%d], offset %d", len(rp.pwmBuf), bufOffs)
		rp.pwm = (*pwmT)(unsafe.Pointer(&rp.pwmBuf[bufOffs]))

		rp.cmClkBuf, bufOffs, err = rp.mapMem(CM_PWM_OFFSET+rp.hw.periphBase, int(unsafe.Sizeof(cmClkT{})))
		if err != nil {
			return fmt.Errorf("couldn't map cmClkT at %08X: %v", CM_PWM_OFFSET+rp.hw.periphBase, err)
		}
		log.Printf("Got cmClkBuf[%d], offset %d", len(rp.cmClkBuf), bufOffs)
		rp.cmClk = (*cmClkT)(unsafe.Pointer(&rp.cmClkBuf[bufOffs]))
	}

	rp.StopPWM()

	// Clock the PWM at period ticks per bit from PLLD. The fractional
	// part of the divider goes through MASH, good enough for the
	// protocol's timing tolerance.
	pllFreq := uint64(PLLD_FREQ)
	if rp.hw.hwType == RPI_HWVER_TYPE_PI4 {
		pllFreq = PLLD_FREQ_PI4
	}
	tickFreq := uint64(freq) * uint64(period)
	divI := uint32(pllFreq / tickFreq)
	divF := uint32((pllFreq % tickFreq) * 4096 / tickFreq)
	rp.cmClk.div = CM_CLK_DIV_PASSWD | cmClkDivI(divI) | cmClkDivF(divF)
	rp.cmClk.ctl = CM_CLK_CTL_PASSWD | CM_CLK_CTL_MASH1 | CM_CLK_CTL_SRC_PLLD
	rp.cmClk.ctl = CM_CLK_CTL_PASSWD | CM_CLK_CTL_MASH1 | CM_CLK_CTL_SRC_PLLD | CM_CLK_CTL_ENAB
	time.Sleep(10 * time.Microsecond)
	for (rp.cmClk.ctl & CM_CLK_CTL_BUSY) == 0 {
	}

	// Set up the PWM, with delays as the block is rumored to lock up
	// without them. Mark-space mode over rng1 ticks, data from the FIFO,
	// serializer mode off: each FIFO word is a plain compare value.
	rp.pwm.rng1 = period
	time.Sleep(10 * time.Microsecond)
	rp.pwm.ctl = RPI_PWM_CTL_CLRF1
	time.Sleep(10 * time.Microsecond)
	rp.pwm.dmac = RPI_PWM_DMAC_ENAB | rpiPwmDmacPanic(7) | rpiPwmDmacDreq(3)
	time.Sleep(10 * time.Microsecond)
	rp.pwm.ctl = RPI_PWM_CTL_MSEN1 | RPI_PWM_CTL_USEF1
	time.Sleep(10 * time.Microsecond)
	rp.pwm.ctl |= RPI_PWM_CTL_PWEN1

	// Ready the DMA control block: data words into the PWM FIFO, paced
	// by its DREQ, looping back to this same block forever.
	buf.c.ti = RPI_DMA_TI_NO_WIDE_BURSTS | // 32-bit transfers
		RPI_DMA_TI_WAIT_RESP | // wait for write complete
		RPI_DMA_TI_DEST_DREQ | // peripheral flow control
		rpiDmaTiPerMap(5) | // PWM peripheral
		RPI_DMA_TI_SRC_INC // increment src addr

	buf.c.sourceAd = uint32(buf.pb.busAddr + unsafe.Sizeof(dmaControl{}))
	buf.c.destAd = PWM_PERIPH_PHYS + uint32(unsafe.Offsetof(rp.pwm.fif1))
	buf.c.txLen = uint32(words * 4)
	buf.c.stride = 0
	buf.c.nextconbk = uint32(buf.pb.busAddr) // continuous: chain to ourselves

	rp.dma.cs = 0
	rp.dma.txLen = 0
	return nil
}

func (rp *RPi) StopPWM() {
	// Turn off the PWM in case it's already running
	rp.pwm.ctl = 0
	time.Sleep(10 * time.Microsecond)

	// Kill the clock if it was already running
	rp.cmClk.ctl = CM_CLK_CTL_PASSWD | CM_CLK_CTL_KILL
	time.Sleep(10 * time.Microsecond)
	for (rp.cmClk.ctl & CM_CLK_CTL_BUSY) != 0 {
	}
}
