package rpi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// RPi gives register-level access to the BCM283x peripherals we need to
// stream an LED bitstream: the PWM block, one DMA channel, the clock
// manager and GPIO, plus the VideoCore mailbox for getting
// DMA-addressable memory.
type RPi struct {
	mbox     *os.File
	hw       *hw
	dmaBuf   mmap.MMap
	dma      *dmaT
	pwmBuf   mmap.MMap
	pwm      *pwmT
	gpioBuf  mmap.MMap
	gpio     *gpioT
	cmClkBuf mmap.MMap
	cmClk    *cmClkT
}

func NewRPi() (*RPi, error) {
	hw, err := detectHardware()
	if err != nil {
		return nil, fmt.Errorf("couldn't detect RPi hardware: %v", err)
	}
	rp := RPi{
		hw: hw,
	}
	err = rp.mboxOpen()
	if err != nil {
		return nil, fmt.Errorf("couldn't open mailbox: %v", err)
	}
	return &rp, nil
}

func (rp *RPi) HardwareName() string {
	return rp.hw.name
}

type hw struct {
	hwType     int
	periphBase uintptr
	vcBase     uintptr
	name       string
}

const (
	RPI_HWVER_TYPE_UNKNOWN = iota
	RPI_HWVER_TYPE_PI1
	RPI_HWVER_TYPE_PI2
	RPI_HWVER_TYPE_PI4

	PERIPH_BASE_RPI  = 0x20000000
	PERIPH_BASE_RPI2 = 0x3f000000
	PERIPH_BASE_RPI4 = 0xfe000000

	VIDEOCORE_BASE_RPI  = 0x40000000
	VIDEOCORE_BASE_RPI2 = 0xc0000000
)

// Board families by revision code. The revision scheme is described at
// https://www.raspberrypi.com/documentation/computers/raspberry-pi.html#raspberry-pi-revision-codes
var hwVariants = []struct {
	hwType     int
	periphBase uintptr
	vcBase     uintptr
	name       string
	revisions  []uint32
}{
	{RPI_HWVER_TYPE_PI1, PERIPH_BASE_RPI, VIDEOCORE_BASE_RPI, "Model A/A+",
		[]uint32{0x07, 0x08, 0x09, 0x12, 0x15, 0x900021}},
	{RPI_HWVER_TYPE_PI1, PERIPH_BASE_RPI, VIDEOCORE_BASE_RPI, "Model B/B+",
		[]uint32{0x02, 0x03, 0x04, 0x05, 0x06, 0x0d, 0x0e, 0x0f, 0x10, 0x13, 0x900032}},
	{RPI_HWVER_TYPE_PI1, PERIPH_BASE_RPI, VIDEOCORE_BASE_RPI, "Compute Module 1",
		[]uint32{0x11, 0x14}},
	{RPI_HWVER_TYPE_PI1, PERIPH_BASE_RPI, VIDEOCORE_BASE_RPI, "Pi Zero",
		[]uint32{0x900092, 0x900093, 0x920093, 0x9200c1, 0x9000c1}},
	{RPI_HWVER_TYPE_PI2, PERIPH_BASE_RPI2, VIDEOCORE_BASE_RPI2, "Pi 2",
		[]uint32{0xA01040, 0xA01041, 0xA21041, 0xA22042}},
	{RPI_HWVER_TYPE_PI2, PERIPH_BASE_RPI2, VIDEOCORE_BASE_RPI2, "Pi 3",
		[]uint32{0xA02082, 0xA02083, 0xA22082, 0xA22083, 0xA020D3, 0x9020e0}},
	{RPI_HWVER_TYPE_PI2, PERIPH_BASE_RPI2, VIDEOCORE_BASE_RPI2, "Compute Module 3/3+",
		[]uint32{0xA020A0, 0xA02100}},
	{RPI_HWVER_TYPE_PI4, PERIPH_BASE_RPI4, VIDEOCORE_BASE_RPI2, "Pi 4",
		[]uint32{0xA03111, 0xB03111, 0xC03111, 0xA03112, 0xB03112, 0xC03112, 0xB03114, 0xD03114}},
	{RPI_HWVER_TYPE_PI4, PERIPH_BASE_RPI4, VIDEOCORE_BASE_RPI2, "Pi 400",
		[]uint32{0xC03130}},
}

// detectHardware works out which Raspberry Pi we're running on from the
// device tree's revision code. The original rpihw.c has a second,
// ARM32-only detection path; the device-tree way works on everything we
// care about.
func detectHardware() (*hw, error) {
	f, err := os.Open("/proc/device-tree/system/linux,revision")
	if err != nil {
		return nil, fmt.Errorf("couldn't open linux revision file: %v", err)
	}
	b := make([]byte, 4)
	n, err := f.Read(b)
	f.Close() // Ignore error
	if err != nil {
		return nil, fmt.Errorf("couldn't read revision: %v", err)
	}
	if n != 4 {
		return nil, fmt.Errorf("revision file got %d instead of 4 bytes", n)
	}
	r := bytes.NewReader(b)
	var rev uint32
	err = binary.Read(r, binary.BigEndian, &rev)
	if err != nil {
		return nil, fmt.Errorf("somehow couldn't convert 4 bytes to a uint32: %v", err)
	}
	return lookupHardware(rev)
}

func lookupHardware(rev uint32) (*hw, error) {
	for _, v := range hwVariants {
		for _, r := range v.revisions {
			if r == rev {
				return &hw{v.hwType, v.periphBase, v.vcBase, v.name}, nil
			}
		}
	}
	return nil, fmt.Errorf("couldn't identify hardware revision %X", rev)
}
