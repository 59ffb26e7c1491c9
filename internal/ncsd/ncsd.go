// Package ncsd decodes the NCSD outer container of a 3DS cartridge image:
// the fixed 0x200-byte header, its eight-slot partition table, and the
// crypt-type guard that rejects encrypted dumps before any inner partition
// is ever touched.
package ncsd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go3ds/romfs3ds/internal/partition"
)

const (
	sectorSize       = 0x200
	signatureSize    = 0x100
	magicSize        = 4
	partitionCount   = 8
	exheaderHashSize = 0x20
)

var magic = [magicSize]byte{'N', 'C', 'S', 'D'}

// ErrEncryptedROM is returned when the crypt-type field is non-zero: this
// package only understands unencrypted cartridge dumps.
var ErrEncryptedROM = errors.New("ncsd: rom is encrypted")

// InvalidMagicError reports a header whose magic bytes were not "NCSD".
type InvalidMagicError struct {
	Got [magicSize]byte
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("ncsd: invalid magic %q, want %q", e.Got[:], magic[:])
}

// NonexistentPartitionError reports a request for a partition slot that is
// out of range, or present in range but marked empty (zero offset).
type NonexistentPartitionError struct {
	Index int
}

func (e *NonexistentPartitionError) Error() string {
	return fmt.Sprintf("ncsd: partition %d does not exist", e.Index)
}

// FieldReadError wraps an I/O failure encountered while decoding a single
// named header field.
type FieldReadError struct {
	Field string
	Err   error
}

func (e *FieldReadError) Error() string {
	return fmt.Sprintf("ncsd: reading %s: %v", e.Field, e.Err)
}
func (e *FieldReadError) Unwrap() error { return e.Err }

// slot is one entry of the eight-slot partition table: a (offset, length)
// pair in bytes, already scaled up from the on-disk sector count.
type slot struct {
	offset uint32
	length uint32
}

// Reader holds the decoded NCSD header of a cartridge image together with
// the still-open source it was read from, so a later LoadPartition call can
// window into it.
type Reader struct {
	src partition.Source

	Size                uint32
	MediaID             uint64
	PartitionType       uint64
	PartitionCryptType  [8]byte
	PartitionsID        [partitionCount][8]byte
	partitions          [partitionCount]slot
}

func readExact(r io.Reader, field string, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return &FieldReadError{Field: field, Err: err}
	}
	return nil
}

// New decodes the NCSD header from src, which must be positioned at the
// start of the cartridge image. On success src's position is left just past
// the header's final field.
func New(src partition.Source) (*Reader, error) {
	var sig [signatureSize]byte
	if err := readExact(src, "signature", sig[:]); err != nil {
		return nil, err
	}

	var gotMagic [magicSize]byte
	if err := readExact(src, "magic", gotMagic[:]); err != nil {
		return nil, err
	}
	if gotMagic != magic {
		return nil, &InvalidMagicError{Got: gotMagic}
	}

	var sizeBuf [4]byte
	if err := readExact(src, "media image size", sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:]) * sectorSize

	var mediaIDBuf [8]byte
	if err := readExact(src, "media id", mediaIDBuf[:]); err != nil {
		return nil, err
	}
	mediaID := binary.LittleEndian.Uint64(mediaIDBuf[:])

	var partitionTypeBuf [8]byte
	if err := readExact(src, "partition fs type", partitionTypeBuf[:]); err != nil {
		return nil, err
	}
	partitionType := binary.LittleEndian.Uint64(partitionTypeBuf[:])

	var cryptType [8]byte
	if err := readExact(src, "partition crypt type", cryptType[:]); err != nil {
		return nil, err
	}
	if cryptType != ([8]byte{}) {
		return nil, ErrEncryptedROM
	}

	var slots [partitionCount]slot
	for i := 0; i < partitionCount; i++ {
		var offBuf [4]byte
		if err := readExact(src, fmt.Sprintf("partition %d offset", i), offBuf[:]); err != nil {
			return nil, err
		}
		var lenBuf [4]byte
		if err := readExact(src, fmt.Sprintf("partition %d length", i), lenBuf[:]); err != nil {
			return nil, err
		}
		slots[i] = slot{
			offset: binary.LittleEndian.Uint32(offBuf[:]) * sectorSize,
			length: binary.LittleEndian.Uint32(lenBuf[:]) * sectorSize,
		}
	}

	var exheaderHash [exheaderHashSize]byte
	if err := readExact(src, "exheader hash", exheaderHash[:]); err != nil {
		return nil, err
	}

	var additionalHeaderSize [4]byte
	if err := readExact(src, "additional header size", additionalHeaderSize[:]); err != nil {
		return nil, err
	}

	var sectorZeroOffset [4]byte
	if err := readExact(src, "sector zero offset", sectorZeroOffset[:]); err != nil {
		return nil, err
	}

	var partitionFlags [8]byte
	if err := readExact(src, "partition flags", partitionFlags[:]); err != nil {
		return nil, err
	}

	var ids [partitionCount][8]byte
	for i := 0; i < partitionCount; i++ {
		if err := readExact(src, fmt.Sprintf("partition %d id", i), ids[i][:]); err != nil {
			return nil, err
		}
	}

	return &Reader{
		src:                src,
		Size:               size,
		MediaID:            mediaID,
		PartitionType:      partitionType,
		PartitionCryptType: cryptType,
		PartitionsID:       ids,
		partitions:         slots,
	}, nil
}

// LoadPartition returns a bounded [partition.Partition] window over the
// requested slot. Slots are numbered 0-7; slot 0 is conventionally the
// executable content partition whose RomFS this module is built around.
func (r *Reader) LoadPartition(index int) (*partition.Partition, error) {
	if index < 0 || index >= partitionCount {
		return nil, &NonexistentPartitionError{Index: index}
	}
	s := r.partitions[index]
	if s.offset == 0 {
		return nil, &NonexistentPartitionError{Index: index}
	}
	return partition.New(r.src, uint64(s.offset), uint64(s.length))
}
