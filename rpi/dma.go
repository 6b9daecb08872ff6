package rpi

import (
	"fmt"
	"log"
	"time"
	"unsafe"
)

const (
	PAGE_SIZE       = 4096 // Theoretically, we could get this via whatever getconf does
	PWM_OFFSET      = uintptr(0x0020c000)
	GPIO_OFFSET     = uintptr(0x00200000)
	CM_PWM_OFFSET   = uintptr(0x001010a0)
	PWM_PERIPH_PHYS = uint32(0x7e20c000)
)

var dmaOffsets = map[int]uintptr{
	0:  0x00007000,
	1:  0x00007100,
	2:  0x00007200,
	3:  0x00007300,
	4:  0x00007400,
	5:  0x00007500,
	6:  0x00007600,
	7:  0x00007700,
	8:  0x00007800,
	9:  0x00007900,
	10: 0x00007a00,
	11: 0x00007b00,
	12: 0x00007c00,
	13: 0x00007d00,
	14: 0x00007e00,
	15: 0x00e05000,
}

const (
	RPI_DMA_CS_RESET                   = 1 << 31
	RPI_DMA_CS_ABORT                   = 1 << 30
	RPI_DMA_CS_WAIT_OUTSTANDING_WRITES = 1 << 28
	RPI_DMA_CS_ERROR                   = 1 << 8
	RPI_DMA_CS_INT                     = 1 << 2
	RPI_DMA_CS_END                     = 1 << 1
	RPI_DMA_CS_ACTIVE                  = 1 << 0
	RPI_DMA_TI_NO_WIDE_BURSTS          = 1 << 26
	RPI_DMA_TI_SRC_INC                 = 1 << 8
	RPI_DMA_TI_DEST_DREQ               = 1 << 6
	RPI_DMA_TI_WAIT_RESP               = 1 << 3
)

// dmaT is the register block of one DMA channel. See p41.
type dmaT struct {
	cs        uint32
	conblkAd  uint32
	ti        uint32
	sourceAd  uint32
	destAd    uint32
	txLen     uint32
	stride    uint32
	nextConBk uint32
	debug     uint32
}

// dmaControl is an in-memory DMA control block, read by the engine from
// bus-addressable memory. See p40.
type dmaControl struct {
	ti        uint32
	sourceAd  uint32
	destAd    uint32
	txLen     uint32
	stride    uint32
	nextconbk uint32
	resvd1    uint32
	resvd2    uint32
}

// DMABuf is a physically contiguous buffer whose first bytes hold the
// control block describing its own transfer, followed by the data words.
type DMABuf struct {
	pb *PhysBuf
	c  *dmaControl
}

func (rp *RPi) GetDMABuf(bytes uint) (*DMABuf, error) {
	var d DMABuf
	var err error
	d.pb, err = rp.getPhysBuf(calcDMABufSize(bytes))
	if err != nil {
		return nil, fmt.Errorf("couldn't get %d byte physical buffer for DMA: %v", bytes, err)
	}
	d.c = (*dmaControl)(unsafe.Pointer(&d.pb.buf[d.pb.offs]))
	return &d, nil
}

func (rp *RPi) FreeDMABuf(d *DMABuf) error {
	return rp.FreePhysBuf(d.pb)
}

// Uint32Slice returns the data words of the buffer, i.e. everything
// after the control block.
func (d *DMABuf) Uint32Slice() []uint32 {
	return d.pb.uint32Slice(unsafe.Sizeof(dmaControl{}))
}

// calcDMABufSize returns the allocation size for a DMA buffer carrying
// the given number of data bytes plus the dmaControl header, rounded up
// to whole pages.
func calcDMABufSize(bytes uint) uint32 {
	bytes += uint(unsafe.Sizeof(dmaControl{}))
	return uint32(((bytes / PAGE_SIZE) + 1) * PAGE_SIZE)
}

func (rp *RPi) InitDMA(dma int) error {
	offset, ok := dmaOffsets[dma]
	if !ok {
		return fmt.Errorf("no offset found for DMA %d", dma)
	}
	offset += rp.hw.periphBase
	var (
		bufOffs uintptr
		err     error
	)
	rp.dmaBuf, bufOffs, err = rp.mapMem(offset, int(unsafe.Sizeof(dmaT{})))
	if err != nil {
		return fmt.Errorf("couldn't map dmaT at %08X: %v", offset, err)
	}
	log.Printf("Got dmaBuf[%d], offset %d", len(rp.dmaBuf), bufOffs)
	rp.dma = (*dmaT)(unsafe.Pointer(&rp.dmaBuf[bufOffs]))
	return nil
}

func rpiDmaCsPanicPriority(val uint32) uint32 {
	return (val & 0xf) << 20
}

func rpiDmaCsPriority(val uint32) uint32 {
	return (val & 0xf) << 16
}

// StartDMA resets the channel and starts it on the buffer's control
// block. The control block chains to itself (set up in InitPWM), so the
// transfer repeats until StopDMA - the chain keeps being refreshed with
// the same frame and the caller never has to feed the engine.
func (rp *RPi) StartDMA(d *DMABuf) {
	rp.dma.cs = RPI_DMA_CS_RESET
	time.Sleep(10 * time.Microsecond)

	rp.dma.cs = RPI_DMA_CS_INT | RPI_DMA_CS_END
	time.Sleep(10 * time.Microsecond)

	rp.dma.conblkAd = uint32(d.pb.busAddr)
	rp.dma.debug = 7 // clear debug error flags
	rp.dma.cs = RPI_DMA_CS_WAIT_OUTSTANDING_WRITES |
		rpiDmaCsPanicPriority(15) |
		rpiDmaCsPriority(15) |
		RPI_DMA_CS_ACTIVE
}

// StopDMA aborts the running transfer. Output stops mid-frame; the
// caller is expected to re-arm with a full frame immediately after, and
// the chain's latch gap sorts out any half-clocked LED.
func (rp *RPi) StopDMA() error {
	if rp.dma == nil {
		return fmt.Errorf("DMA not initialized")
	}
	cs := rp.dma.cs
	if cs&RPI_DMA_CS_ACTIVE != 0 {
		rp.dma.cs = cs &^ RPI_DMA_CS_ACTIVE
		time.Sleep(10 * time.Microsecond)
		rp.dma.cs = RPI_DMA_CS_ABORT
		time.Sleep(10 * time.Microsecond)
	}
	rp.dma.cs = RPI_DMA_CS_RESET
	time.Sleep(10 * time.Microsecond)
	if rp.dma.cs&RPI_DMA_CS_ERROR != 0 {
		return fmt.Errorf("DMA error, cs %08X, debug %08X", rp.dma.cs, rp.dma.debug)
	}
	return nil
}
