// Package cbor implements the hand-written tuple-array CBOR codec every
// on-chain record in this module uses, in the style of
// github.com/whyrusleeping/cbor-gen: explicit MarshalCBOR/UnmarshalCBOR
// methods writing canonical major-type headers directly, rather than
// encoding/json or reflection-based CBOR. Only explicit encoding can
// guarantee the bit-exact byte layout the HAMT/AMT root-CID invariants
// depend on.
package cbor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/synnergy-chain/actorcore/cid"
)

// Marshaler is implemented by every on-chain record type.
type Marshaler interface {
	MarshalCBOR(w io.Writer) error
}

// Unmarshaler is implemented by every on-chain record type.
type Unmarshaler interface {
	UnmarshalCBOR(r io.Reader) error
}

const (
	majUnsignedInt byte = 0
	majNegativeInt byte = 1
	majByteString  byte = 2
	majTextString  byte = 3
	majArray       byte = 4
	majMap         byte = 5
	majTag         byte = 6
	majOther       byte = 7
)

// CidLinkTag is the CBOR tag DAG-CBOR uses to mark a byte string as a CID
// link (tag 42).
const CidLinkTag = 42

var (
	ErrUnexpectedMajorType = errors.New("cbor: unexpected major type")
	ErrTooLong             = errors.New("cbor: length exceeds implementation limit")
)

// maxLength bounds array/map/string lengths decoded from untrusted input.
const maxLength = 1 << 24

func writeHeader(w io.Writer, maj byte, v uint64) error {
	b := maj << 5
	switch {
	case v < 24:
		_, err := w.Write([]byte{b | byte(v)})
		return err
	case v <= 0xff:
		_, err := w.Write([]byte{b | 24, byte(v)})
		return err
	case v <= 0xffff:
		_, err := w.Write([]byte{b | 25, byte(v >> 8), byte(v)})
		return err
	case v <= 0xffffffff:
		buf := []byte{b | 26, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = b | 27
		for i := 0; i < 8; i++ {
			buf[8-i] = byte(v >> (8 * i))
		}
		_, err := w.Write(buf)
		return err
	}
}

// WriteUInt writes an unsigned integer as a CBOR major-0 value.
func WriteUInt(w io.Writer, v uint64) error {
	return writeHeader(w, majUnsignedInt, v)
}

// WriteInt writes a signed integer, using major-1 negative encoding for
// negative values per the CBOR spec (-1-n).
func WriteInt(w io.Writer, v int64) error {
	if v >= 0 {
		return writeHeader(w, majUnsignedInt, uint64(v))
	}
	return writeHeader(w, majNegativeInt, uint64(-1-v))
}

// WriteBool writes a CBOR boolean (major 7, simple values 20/21).
func WriteBool(w io.Writer, v bool) error {
	val := byte(0xf4)
	if v {
		val = 0xf5
	}
	_, err := w.Write([]byte{val})
	return err
}

// WriteBytes writes a definite-length byte string.
func WriteBytes(w io.Writer, b []byte) error {
	if err := writeHeader(w, majByteString, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteString writes a definite-length UTF-8 text string.
func WriteString(w io.Writer, s string) error {
	if err := writeHeader(w, majTextString, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// WriteArrayHeader opens a definite-length array of n elements.
func WriteArrayHeader(w io.Writer, n uint64) error {
	return writeHeader(w, majArray, n)
}

// WriteMapHeader opens a definite-length map of n key/value pairs.
func WriteMapHeader(w io.Writer, n uint64) error {
	return writeHeader(w, majMap, n)
}

// WriteCid writes a CID as a DAG-CBOR tag-42 byte string: the tag, followed
// by a byte string whose first byte is the identity multibase prefix 0x00
// followed by the CID's own binary form.
func WriteCid(w io.Writer, c cid.Cid) error {
	if err := writeHeader(w, majTag, CidLinkTag); err != nil {
		return err
	}
	raw := c.Bytes()
	buf := make([]byte, len(raw)+1)
	buf[0] = 0x00
	copy(buf[1:], raw)
	return WriteBytes(w, buf)
}

// --- reading ---

// Reader wraps a byte source with one-byte lookahead for header peeking.
type Reader struct {
	br *bufio.Reader
}

// byteAtATime hands bufio at most one byte per Read, so a Reader never takes
// more from its source than it has decoded or peeked; record decoders rely
// on this when they pass the same source on to a nested decoder.
type byteAtATime struct{ r io.Reader }

func (b byteAtATime) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return b.r.Read(p)
}

func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{br: br}
	}
	return &Reader{br: bufio.NewReaderSize(byteAtATime{r}, 16)}
}

func (r *Reader) readHeader() (byte, uint64, error) {
	first, err := r.br.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	maj := first >> 5
	info := first & 0x1f
	switch {
	case info < 24:
		return maj, uint64(info), nil
	case info == 24:
		b, err := r.br.ReadByte()
		return maj, uint64(b), err
	case info == 25:
		var buf [2]byte
		if _, err := io.ReadFull(r.br, buf[:]); err != nil {
			return 0, 0, err
		}
		return maj, uint64(buf[0])<<8 | uint64(buf[1]), nil
	case info == 26:
		var buf [4]byte
		if _, err := io.ReadFull(r.br, buf[:]); err != nil {
			return 0, 0, err
		}
		v := uint64(0)
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		return maj, v, nil
	case info == 27:
		var buf [8]byte
		if _, err := io.ReadFull(r.br, buf[:]); err != nil {
			return 0, 0, err
		}
		v := uint64(0)
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		return maj, v, nil
	default:
		return 0, 0, fmt.Errorf("cbor: unsupported additional info %d", info)
	}
}

// ReadUInt reads a major-0 unsigned integer.
func (r *Reader) ReadUInt() (uint64, error) {
	maj, v, err := r.readHeader()
	if err != nil {
		return 0, err
	}
	if maj != majUnsignedInt {
		return 0, ErrUnexpectedMajorType
	}
	return v, nil
}

// ReadInt reads a major-0 or major-1 integer into a signed int64.
func (r *Reader) ReadInt() (int64, error) {
	maj, v, err := r.readHeader()
	if err != nil {
		return 0, err
	}
	switch maj {
	case majUnsignedInt:
		if v > math.MaxInt64 {
			return 0, ErrTooLong
		}
		return int64(v), nil
	case majNegativeInt:
		if v > math.MaxInt64 {
			return 0, ErrTooLong
		}
		return -1 - int64(v), nil
	default:
		return 0, ErrUnexpectedMajorType
	}
}

// ReadBool reads a major-7 boolean simple value.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0xf4:
		return false, nil
	case 0xf5:
		return true, nil
	default:
		return false, ErrUnexpectedMajorType
	}
}

// ReadBytes reads a definite-length byte string.
func (r *Reader) ReadBytes() ([]byte, error) {
	maj, n, err := r.readHeader()
	if err != nil {
		return nil, err
	}
	if maj != majByteString {
		return nil, ErrUnexpectedMajorType
	}
	if n > maxLength {
		return nil, ErrTooLong
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a definite-length UTF-8 text string.
func (r *Reader) ReadString() (string, error) {
	maj, n, err := r.readHeader()
	if err != nil {
		return "", err
	}
	if maj != majTextString {
		return "", ErrUnexpectedMajorType
	}
	if n > maxLength {
		return "", ErrTooLong
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadArrayHeader reads a definite-length array header, returning its count.
func (r *Reader) ReadArrayHeader() (uint64, error) {
	maj, n, err := r.readHeader()
	if err != nil {
		return 0, err
	}
	if maj != majArray {
		return 0, ErrUnexpectedMajorType
	}
	if n > maxLength {
		return 0, ErrTooLong
	}
	return n, nil
}

// ReadMapHeader reads a definite-length map header, returning its pair count.
func (r *Reader) ReadMapHeader() (uint64, error) {
	maj, n, err := r.readHeader()
	if err != nil {
		return 0, err
	}
	if maj != majMap {
		return 0, ErrUnexpectedMajorType
	}
	if n > maxLength {
		return 0, ErrTooLong
	}
	return n, nil
}

// ReadCid reads a tag-42 CID link.
func (r *Reader) ReadCid() (cid.Cid, error) {
	maj, tag, err := r.readHeader()
	if err != nil {
		return cid.Undef, err
	}
	if maj != majTag || tag != CidLinkTag {
		return cid.Undef, ErrUnexpectedMajorType
	}
	raw, err := r.ReadBytes()
	if err != nil {
		return cid.Undef, err
	}
	if len(raw) == 0 || raw[0] != 0x00 {
		return cid.Undef, errors.New("cbor: cid link missing identity multibase prefix")
	}
	return cid.FromBytes(raw[1:])
}

// PeekMajorType returns the major type of the next value without consuming
// it.
func (r *Reader) PeekMajorType() (byte, error) {
	b, err := r.br.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0] >> 5, nil
}
