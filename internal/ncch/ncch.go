// Package ncch decodes the NCCH inner partition header found inside a
// cartridge partition: content metadata plus the plain, logo, EXEFS, and
// RomFS sub-region table.
package ncch

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go3ds/romfs3ds/internal/partition"
)

const (
	sectorSize    = 0x200
	signatureSize = 0x100
	magicSize     = 4
	flagsOffset   = 0x188
	romfsOffset   = 0x1B0
)

var magic = [magicSize]byte{'N', 'C', 'C', 'H'}

// InvalidMagicError reports a header whose magic bytes were not "NCCH".
type InvalidMagicError struct {
	Got [magicSize]byte
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("ncch: invalid magic %q, want %q", e.Got[:], magic[:])
}

// FieldReadError wraps an I/O failure encountered while decoding a single
// named header field.
type FieldReadError struct {
	Field string
	Err   error
}

func (e *FieldReadError) Error() string {
	return fmt.Sprintf("ncch: reading %s: %v", e.Field, e.Err)
}
func (e *FieldReadError) Unwrap() error { return e.Err }

// FieldSeekError wraps an I/O failure encountered while seeking to a
// named header field.
type FieldSeekError struct {
	Field string
	Err   error
}

func (e *FieldSeekError) Error() string {
	return fmt.Sprintf("ncch: seeking to %s: %v", e.Field, e.Err)
}
func (e *FieldSeekError) Unwrap() error { return e.Err }

// region is a (offset, length) extent expressed in bytes, relative to the
// start of the NCCH partition itself.
type region struct {
	offset uint32
	length uint32
}

// Reader holds the decoded NCCH header together with the partition source
// it was read from, so the exposed sub-regions can be windowed on demand.
type Reader struct {
	src partition.Source

	ContentSize uint32
	Version     uint16
	Flags       [8]byte

	plainRegion region
	logoRegion  region
	exefs       region
	romfs       region
}

func readExact(r io.Reader, field string, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return &FieldReadError{Field: field, Err: err}
	}
	return nil
}

func readRegion(r io.Reader, name string) (region, error) {
	var offBuf [4]byte
	if err := readExact(r, name+" offset", offBuf[:]); err != nil {
		return region{}, err
	}
	var lenBuf [4]byte
	if err := readExact(r, name+" length", lenBuf[:]); err != nil {
		return region{}, err
	}
	return region{
		offset: binary.LittleEndian.Uint32(offBuf[:]) * sectorSize,
		length: binary.LittleEndian.Uint32(lenBuf[:]) * sectorSize,
	}, nil
}

// New decodes the NCCH header from src, which must be positioned at the
// start of the partition.
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
	if err := readExact(src, "content size", sizeBuf[:]); err != nil {
		return nil, err
	}
	contentSize := binary.LittleEndian.Uint32(sizeBuf[:]) * sectorSize

	var partitionID [8]byte
	if err := readExact(src, "partition id", partitionID[:]); err != nil {
		return nil, err
	}

	var makerCode [2]byte
	if err := readExact(src, "maker code", makerCode[:]); err != nil {
		return nil, err
	}

	var versionBuf [2]byte
	if err := readExact(src, "version", versionBuf[:]); err != nil {
		return nil, err
	}
	version := binary.LittleEndian.Uint16(versionBuf[:])

	if _, err := src.Seek(flagsOffset, io.SeekStart); err != nil {
		return nil, &FieldSeekError{Field: "flags", Err: err}
	}
	var flags [8]byte
	if err := readExact(src, "flags", flags[:]); err != nil {
		return nil, err
	}

	plainRegion, err := readRegion(src, "plain region")
	if err != nil {
		return nil, err
	}
	logoRegion, err := readRegion(src, "logo region")
	if err != nil {
		return nil, err
	}
	exefs, err := readRegion(src, "exefs")
	if err != nil {
		return nil, err
	}

	if _, err := src.Seek(romfsOffset, io.SeekStart); err != nil {
		return nil, &FieldSeekError{Field: "romfs", Err: err}
	}
	romfs, err := readRegion(src, "romfs")
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:         src,
		ContentSize: contentSize,
		Version:     version,
		Flags:       flags,
		plainRegion: plainRegion,
		logoRegion:  logoRegion,
		exefs:       exefs,
		romfs:       romfs,
	}, nil
}

// GetPlainRegion windows the plain-text region (application name, etc).
func (r *Reader) GetPlainRegion() (*partition.Partition, error) {
	return r.windowRegion(r.plainRegion)
}

// GetLogoRegion windows the logo region.
func (r *Reader) GetLogoRegion() (*partition.Partition, error) {
	return r.windowRegion(r.logoRegion)
}

// GetEXEFS windows the EXEFS (executable filesystem) region.
func (r *Reader) GetEXEFS() (*partition.Partition, error) {
	return r.windowRegion(r.exefs)
}

// GetRomFS windows the RomFS region: the IVFC-hashed data this module
// ultimately exposes as a filesystem.
func (r *Reader) GetRomFS() (*partition.Partition, error) {
	return r.windowRegion(r.romfs)
}

func (r *Reader) windowRegion(reg region) (*partition.Partition, error) {
	return partition.New(r.src, uint64(reg.offset), uint64(reg.length))
}
