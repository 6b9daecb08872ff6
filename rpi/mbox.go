package rpi

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"reflect"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// Peripheral details here are from the BCM2835 reference at
// https://www.raspberrypi.org/app/uploads/2012/02/BCM2835-ARM-Peripherals.pdf
// (page numbers noted below). The mailbox protocol is documented at
// https://github.com/raspberrypi/firmware/wiki/Mailbox-property-interface

const (
	VIDEOCORE_MAJOR_NUM = 100
	MEM_FILE            = "/dev/mem"
	VCIO_FILE           = "/dev/vcio"
	MBOX_DEV            = 100 << 20 // Assumes devices have 12-bit major, 20-bit minor numbers
	MBOX_MODE           = 0600
)

// Mailbox property tag IDs.
const (
	tagAllocMem  = 0x3000c
	tagLockMem   = 0x3000d
	tagUnlockMem = 0x3000e
	tagFreeMem   = 0x3000f
)

// PhysBuf is a block of VideoCore memory: physically contiguous,
// DMA-addressable via busAddr and mapped into our address space via buf.
type PhysBuf struct {
	handle  uintptr
	busAddr uintptr
	buf     mmap.MMap
	offs    uintptr
}

// uint32Slice does terrible things to an MMap (which is itself a []byte)
// to return the physical buffer as a []uint32. It takes care of the
// offset between the page boundary (where MMaps always start) and the
// actual mapped area, plus any caller-specified offs.
func (pb *PhysBuf) uint32Slice(offs uintptr) []uint32 {
	offs += pb.offs
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&pb.buf))
	header.Len -= int(offs)
	header.Len /= 4
	header.Cap -= int(offs)
	header.Cap /= 4
	header.Data += offs
	return *(*[]uint32)(unsafe.Pointer(&header))
}

// getPhysBuf allocates, locks and maps a buffer of VideoCore memory.
func (rp *RPi) getPhysBuf(size uint32) (*PhysBuf, error) {
	pb := PhysBuf{}
	var err error
	pb.handle, err = rp.allocVCMem(size)
	if err != nil {
		return nil, fmt.Errorf("couldn't allocMem of size %v: %v", size, err)
	}
	pb.busAddr, err = rp.lockVCMem(pb.handle)
	if err != nil {
		rp.freeVCMem(pb.handle) // Ignore error
		return nil, fmt.Errorf("couldn't lockMem(%X) of size %v: %v", pb.handle, size, err)
	}
	pb.buf, pb.offs, err = rp.mapMem(busToPhys(pb.busAddr), int(size))
	if err != nil {
		rp.unlockVCMem(pb.handle) // Ignore error
		rp.freeVCMem(pb.handle)   // Ignore error
		return nil, fmt.Errorf("couldn't map busAddr(%X) of size %v: %v", pb.busAddr, size, err)
	}
	log.Printf("mapped %d bytes, busaddr %08X, offset %d", size, pb.busAddr, pb.offs)
	return &pb, nil
}

func (rp *RPi) FreePhysBuf(pb *PhysBuf) error {
	var err, te error
	if pb.buf != nil {
		err = pb.buf.Unmap()
		pb.buf = nil
		// Hold the error, the VC memory should still be released
	}
	if pb.busAddr != 0 {
		pb.busAddr = 0
		te = rp.unlockVCMem(pb.handle)
		if err == nil {
			err = te
		}
	}
	if pb.handle != 0 {
		te = rp.freeVCMem(pb.handle)
		pb.handle = 0
		if err == nil {
			err = te
		}
	}
	return err
}

// busToPhys converts a BCM2835 bus address to a physical address
func busToPhys(busAddr uintptr) uintptr {
	return busAddr &^ 0xC0000000 // p7
}

// mapMem opens /dev/mem and mmaps a given physical address into our
// address space. The mapping has to start at a page boundary, so the
// address is rounded down; mapMem returns the mapped memory plus the
// offset at which the requested address lives within it.
func (rp *RPi) mapMem(physAddr uintptr, size int) (mmap.MMap, uintptr, error) {
	f, err := os.OpenFile(MEM_FILE, os.O_RDWR|os.O_SYNC, os.ModePerm)
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't open %s: %v", MEM_FILE, err)
	}

	pagemask := ^uintptr(PAGE_SIZE - 1)
	mapAddr := physAddr & pagemask
	size += int(physAddr - mapAddr)
	mm, err := mmap.MapRegion(f, size, mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		f.Close() // Ignore error
		return nil, 0, fmt.Errorf("couldn't map region (%v, %v): %v", physAddr, size, err)
	}
	f.Close() // Ignore error

	return mm, physAddr & (PAGE_SIZE - 1), nil
}

// mboxOpenTemp creates a temporary device node for ioctl-ing with the
// mailbox, opens it and immediately removes the node once it's open.
func (rp *RPi) mboxOpenTemp() error {
	tf := path.Join(os.TempDir(), fmt.Sprintf("mailbox-%d", os.Getpid()))
	err := os.Remove(tf)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("couldn't remove temp mbox: %v", err)
	}
	err = unix.Mknod(tf, unix.S_IFCHR|MBOX_MODE, MBOX_DEV)
	if err != nil {
		return fmt.Errorf("couldn't make device node: %v", err)
	}
	f, err := os.OpenFile(tf, os.O_RDONLY, os.ModePerm)
	if err != nil {
		return fmt.Errorf("couldn't open temp mbox: %v", err)
	}
	err = os.Remove(tf)
	if err != nil {
		f.Close() // Ignore error
		return fmt.Errorf("couldn't remove temp mbox: %v", err)
	}
	rp.mbox = f
	return nil
}

// mboxOpen opens /dev/vcio for ioctl-ing with the mailbox. If that
// doesn't exist (old kernel), it falls back to a temporary node.
func (rp *RPi) mboxOpen() error {
	var err error
	rp.mbox, err = os.OpenFile(VCIO_FILE, os.O_RDONLY, os.ModePerm)
	if errors.Is(err, os.ErrNotExist) {
		err = rp.mboxOpenTemp()
	}
	if err != nil {
		return fmt.Errorf("couldn't open mbox: %v", err)
	}
	return nil
}

// mboxProperty sends one property message via the mailbox ioctl.
func (rp *RPi) mboxProperty(buf []uint32) error {
	if rp.mbox == nil {
		return errors.New("mailbox not open")
	}
	mboxProperty := iowr(VIDEOCORE_MAJOR_NUM, 0, uintptr(0))
	err := ioctlArrUint32(rp.mbox.Fd(), mboxProperty, buf)
	if err != nil {
		return fmt.Errorf("failed ioctl mbox property: %v", err)
	}
	return nil
}

// vcMemRequest runs a single-tag property request and returns the first
// word of the response tag value. All four memory tags we use share this
// shape; only allocate has more than one request value.
func (rp *RPi) vcMemRequest(tag uint32, vals ...uint32) (uint32, error) {
	p := make([]uint32, 32)
	i := uint32(0)
	p[i] = 0 // message size, filled in below
	i++
	p[i] = 0 // process request
	i++
	p[i] = tag
	i++
	p[i] = uint32(len(vals) * 4) // size of the tag value to follow
	i++
	p[i] = 0 // bit 31 cleared, rest is reserved
	i++
	for _, v := range vals {
		p[i] = v
		i++
	}
	p[i] = 0 // no more tags
	i++
	p[0] = i * 4

	err := rp.mboxProperty(p)
	if err != nil {
		return 0, fmt.Errorf("mboxProperty failed: %v", err)
	}
	if p[4]&0x80000000 == 0 {
		return 0, fmt.Errorf("response tag unset: %v", p[4])
	}
	return p[5], nil // first word of the response tag value
}

func (rp *RPi) allocVCMem(size uint32) (uintptr, error) {
	// The flags differ by platform: MEM_FLAG_L1_NONALLOCATING on the
	// original BCM2835, MEM_FLAG_DIRECT on everything later.
	flags := uint32(0x4)
	if rp.hw.vcBase == VIDEOCORE_BASE_RPI {
		flags = 0xC
	}
	handle, err := rp.vcMemRequest(tagAllocMem, size, PAGE_SIZE, flags)
	if err != nil {
		return 0, err
	}
	if handle == 0 {
		return 0, fmt.Errorf("out of memory")
	}
	return uintptr(handle), nil
}

func (rp *RPi) lockVCMem(handle uintptr) (uintptr, error) {
	busAddr, err := rp.vcMemRequest(tagLockMem, uint32(handle))
	if err != nil {
		return 0, err
	}
	return uintptr(busAddr), nil
}

func (rp *RPi) unlockVCMem(handle uintptr) error {
	status, err := rp.vcMemRequest(tagUnlockMem, uint32(handle))
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("status non-zero: %v", status)
	}
	return nil
}

func (rp *RPi) freeVCMem(handle uintptr) error {
	status, err := rp.vcMemRequest(tagFreeMem, uint32(handle))
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("status non-zero: %v", status)
	}
	return nil
}
