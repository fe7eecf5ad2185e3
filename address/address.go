// Package address implements the four-protocol actor address scheme used
// throughout the actor core: ID, Secp256k1, Actor and BLS addresses, each
// with a canonical binary form and a checksummed text form.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Protocol identifies which of the four address kinds a payload encodes.
type Protocol byte

const (
	ID Protocol = iota
	Secp256k1
	Actor
	BLS
	Unknown Protocol = 0xff
)

// Network selects the text-form prefix. Addresses compare and hash
// independently of network; it only affects String().
type Network byte

const (
	Mainnet Network = iota
	Testnet
)

const (
	secpPayloadLen = 20
	actorPayloadLen = 20
	blsPayloadLen   = 48
	checksumLen     = 4
)

var encodeStd = "abcdefghijklmnopqrstuvwxyz234567"

// CurrentNetwork is the default network used by String() when an address
// carries no explicit network (addresses themselves are network-agnostic;
// this only controls presentation).
var CurrentNetwork = Testnet

func SetCurrentNetwork(n Network) { CurrentNetwork = n }

// Address is a tagged union over the four supported protocols. The zero
// value is Undef: not a valid address of any protocol.
type Address struct {
	protocol Protocol
	payload  []byte
}

// Undef is the zero-value invalid address, distinguished from any real
// address. Lookups that fail to resolve an address return Undef rather than
// panicking.
var Undef = Address{protocol: Unknown}

var (
	ErrInvalidLength    = errors.New("address: invalid length")
	ErrUnknownProtocol  = errors.New("address: unknown protocol")
	ErrUnknownNetwork   = errors.New("address: unknown network")
	ErrInvalidPayload   = errors.New("address: invalid payload")
	ErrInvalidChecksum  = errors.New("address: invalid checksum")
)

// ErrInvalidBLSLength is returned when a BLS payload is not exactly 48 bytes.
type ErrInvalidBLSLength struct{ N int }

func (e ErrInvalidBLSLength) Error() string {
	return fmt.Sprintf("address: invalid BLS payload length %d", e.N)
}

func (a Address) Protocol() Protocol { return a.protocol }
func (a Address) Payload() []byte    { return a.payload }
func (a Address) Empty() bool        { return a.protocol == Unknown }

// NewID constructs a canonical numeric actor-id address.
func NewID(id uint64) Address {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, id)
	return Address{protocol: ID, payload: buf[:n]}
}

// NewSecp256k1 constructs a secp256k1-backed address from a 20-byte
// Blake2b-160 digest of a public key.
func NewSecp256k1(payload []byte) (Address, error) {
	return newFixed(Secp256k1, payload, secpPayloadLen)
}

// NewActor constructs an actor-creation address from a 20-byte Blake2b-160
// digest of actor-creation data.
func NewActor(payload []byte) (Address, error) {
	return newFixed(Actor, payload, actorPayloadLen)
}

// NewBLS constructs a BLS address from a raw 48-byte public key.
func NewBLS(payload []byte) (Address, error) {
	if len(payload) != blsPayloadLen {
		return Undef, ErrInvalidBLSLength{len(payload)}
	}
	out := make([]byte, blsPayloadLen)
	copy(out, payload)
	return Address{protocol: BLS, payload: out}, nil
}

func newFixed(p Protocol, payload []byte, want int) (Address, error) {
	if len(payload) != want {
		return Undef, ErrInvalidLength
	}
	out := make([]byte, want)
	copy(out, payload)
	return Address{protocol: p, payload: out}, nil
}

// Id returns the numeric id for an ID-protocol address.
func (a Address) Id() (uint64, error) {
	if a.protocol != ID {
		return 0, fmt.Errorf("address: not an ID address")
	}
	id, n := binary.Uvarint(a.payload)
	if n <= 0 {
		return 0, ErrInvalidPayload
	}
	return id, nil
}

// FromBytes decodes the canonical binary form: [protocol:1][payload...].
func FromBytes(b []byte) (Address, error) {
	if len(b) == 0 {
		return Undef, ErrInvalidLength
	}
	p := Protocol(b[0])
	body := b[1:]
	switch p {
	case ID:
		if len(body) == 0 {
			return Undef, ErrInvalidLength
		}
		id, n := binary.Uvarint(body)
		if n <= 0 || n != len(body) {
			return Undef, ErrInvalidPayload
		}
		return NewID(id), nil
	case Secp256k1:
		return NewSecp256k1(body)
	case Actor:
		return NewActor(body)
	case BLS:
		return NewBLS(body)
	default:
		return Undef, ErrUnknownProtocol
	}
}

// ToBytes encodes the canonical binary form.
func (a Address) ToBytes() []byte {
	if a.Empty() {
		return nil
	}
	out := make([]byte, 0, 1+len(a.payload))
	out = append(out, byte(a.protocol))
	out = append(out, a.payload...)
	return out
}

func checksum(protocol Protocol, payload []byte) [checksumLen]byte {
	h, _ := blake2b.New(checksumLen, nil)
	h.Write([]byte{byte(protocol)})
	h.Write(payload)
	var out [checksumLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

// String renders the text form using CurrentNetwork:
// <network><protocol digit><body>. ID addresses carry a decimal payload;
// the rest carry base32(payload ‖ checksum), no padding.
func (a Address) String() string {
	return a.StringWithNetwork(CurrentNetwork)
}

// StringWithNetwork renders the text form for an explicit network prefix.
func (a Address) StringWithNetwork(n Network) string {
	if a.Empty() {
		return ""
	}
	var prefix byte
	switch n {
	case Mainnet:
		prefix = 'f'
	default:
		prefix = 't'
	}
	if a.protocol == ID {
		id, _ := a.Id()
		return fmt.Sprintf("%c%d%d", prefix, a.protocol, id)
	}
	cksum := checksum(a.protocol, a.payload)
	body := append(append([]byte{}, a.payload...), cksum[:]...)
	return fmt.Sprintf("%c%d%s", prefix, a.protocol, base32Encode(body))
}

// FromString parses the text form, rejecting a tampered checksum.
func FromString(s string) (Address, error) {
	if len(s) < 3 {
		return Undef, ErrInvalidLength
	}
	switch s[0] {
	case 'f', 't':
	default:
		return Undef, ErrUnknownNetwork
	}
	digit := s[1]
	if digit < '0' || digit > '3' {
		return Undef, ErrUnknownProtocol
	}
	p := Protocol(digit - '0')
	rest := s[2:]

	if p == ID {
		id, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Undef, ErrInvalidPayload
		}
		return NewID(id), nil
	}

	raw, err := base32Decode(rest)
	if err != nil {
		return Undef, ErrInvalidPayload
	}
	want := protocolPayloadLen(p)
	if want == 0 || len(raw) != want+checksumLen {
		return Undef, ErrInvalidPayload
	}
	payload := raw[:want]
	given := raw[want:]
	wantCksum := checksum(p, payload)
	for i := range wantCksum {
		if given[i] != wantCksum[i] {
			return Undef, ErrInvalidChecksum
		}
	}
	// The final character also carries padding bits that decoding drops; a
	// body that does not re-encode to itself was altered there.
	if base32Encode(raw) != rest {
		return Undef, ErrInvalidChecksum
	}
	switch p {
	case Secp256k1:
		return NewSecp256k1(payload)
	case Actor:
		return NewActor(payload)
	case BLS:
		return NewBLS(payload)
	default:
		return Undef, ErrUnknownProtocol
	}
}

func protocolPayloadLen(p Protocol) int {
	switch p {
	case Secp256k1:
		return secpPayloadLen
	case Actor:
		return actorPayloadLen
	case BLS:
		return blsPayloadLen
	default:
		return 0
	}
}

// Equal compares addresses by (protocol, payload); network is ignored.
func (a Address) Equal(b Address) bool {
	if a.protocol != b.protocol {
		return false
	}
	if len(a.payload) != len(b.payload) {
		return false
	}
	for i := range a.payload {
		if a.payload[i] != b.payload[i] {
			return false
		}
	}
	return true
}

// Compare orders addresses by (protocol, payload), ignoring network.
func (a Address) Compare(b Address) int {
	if a.protocol != b.protocol {
		if a.protocol < b.protocol {
			return -1
		}
		return 1
	}
	return strings.Compare(string(a.payload), string(b.payload))
}

func base32Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	var bitBuf uint32
	var bitCount uint
	for _, b := range data {
		bitBuf = (bitBuf << 8) | uint32(b)
		bitCount += 8
		for bitCount >= 5 {
			bitCount -= 5
			idx := (bitBuf >> bitCount) & 0x1f
			sb.WriteByte(encodeStd[idx])
		}
	}
	if bitCount > 0 {
		idx := (bitBuf << (5 - bitCount)) & 0x1f
		sb.WriteByte(encodeStd[idx])
	}
	return sb.String()
}

func base32Decode(s string) ([]byte, error) {
	rev := make(map[byte]uint32, 32)
	for i := 0; i < len(encodeStd); i++ {
		rev[encodeStd[i]] = uint32(i)
	}
	var out []byte
	var bitBuf uint32
	var bitCount uint
	for i := 0; i < len(s); i++ {
		v, ok := rev[s[i]]
		if !ok {
			return nil, ErrInvalidPayload
		}
		bitBuf = (bitBuf << 5) | v
		bitCount += 5
		if bitCount >= 8 {
			bitCount -= 8
			out = append(out, byte(bitBuf>>bitCount))
		}
	}
	return out, nil
}
