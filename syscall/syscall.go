// Package syscall exposes the cryptographic and proof-of-spacetime
// capability surface actor code calls through rather than ever inlining
// crypto itself: signature verification, Blake2b hashing, unsealed-sector
// CID computation, seal/PoSt verification, consensus-fault verification,
// and a batch seal-verification entry point reserved for the cron actor.
// The real backend is an external collaborator; this package defines the
// small interface plus a concrete gas-charging wrapper, following the
// teacher's AccessController pattern of a small interface in front of a
// concrete, ledger-backed implementation (core/access_control.go).
package syscall

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"math/big"

	"golang.org/x/crypto/blake2b"

	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/gas"
)

var (
	ErrInvalidSignature    = errors.New("syscall: invalid signature")
	ErrInvalidSeal         = errors.New("syscall: invalid seal proof")
	ErrInvalidPoSt         = errors.New("syscall: invalid proof-of-spacetime")
	ErrInvalidFaultProof   = errors.New("syscall: invalid consensus fault proof")
	ErrUnsupportedKeyProto = errors.New("syscall: unsupported signer address protocol")
)

// SealVerifyInfo describes one sector's proof-of-replication to verify.
type SealVerifyInfo struct {
	SectorID      uint64
	Proof         []byte
	UnsealedCID   cid.Cid
	SealedCID     cid.Cid
}

// PoStVerifyInfo describes a proof-of-spacetime challenge to verify.
type PoStVerifyInfo struct {
	Proof      []byte
	Randomness []byte
	SectorIDs  []uint64
}

// ConsensusFaultInfo names the two conflicting block headers a
// VerifyConsensusFault call inspects.
type ConsensusFaultInfo struct {
	Block1, Block2 []byte
}

// Backend is the capability every runtime is constructed with. A production
// backend wires real BLS/secp256k1 verification and proof libraries; a test
// backend scripts fixed results.
type Backend interface {
	VerifySignature(sig []byte, signer address.Address, msg []byte) (bool, error)
	HashBlake2b(data []byte) ([32]byte, error)
	ComputeUnsealedSectorCID(pieces [][]byte) (cid.Cid, error)
	VerifySeal(info SealVerifyInfo) (bool, error)
	VerifyPost(info PoStVerifyInfo) (bool, error)
	VerifyConsensusFault(info ConsensusFaultInfo) (bool, error)
	BatchVerifySeals(infos []SealVerifyInfo) ([]bool, error)
}

// Default is a production-shaped backend with real Blake2b hashing. Its
// other checks are placeholders: VerifySignature compares the signer with an
// address derived from the message alone (see recoverPubkey), VerifySeal and
// VerifyPost accept any non-empty proof, and VerifyConsensusFault accepts any
// two distinct non-empty blocks.
type Default struct{}

func NewDefault() *Default { return &Default{} }

func (Default) HashBlake2b(data []byte) ([32]byte, error) {
	return blake2b.Sum256(data), nil
}

func (Default) VerifySignature(sig []byte, signer address.Address, msg []byte) (bool, error) {
	if signer.Protocol() != address.Secp256k1 {
		return false, ErrUnsupportedKeyProto
	}
	if len(sig) != 65 {
		return false, ErrInvalidSignature
	}
	h := blake2b.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	pub := recoverPubkey(elliptic.P256(), h[:], r, s, int(sig[64]))
	if pub == nil {
		return false, nil
	}
	digest := blake2b.Sum256(elliptic.Marshal(elliptic.P256(), pub.X, pub.Y))
	addr, err := address.NewSecp256k1(digest[:20])
	if err != nil {
		return false, err
	}
	return addr.Equal(signer), nil
}

// recoverPubkey is a minimal, non-production stand-in for ECDSA public-key
// recovery: it rejects a zero r or s and otherwise returns hash·G on P-256.
// The result depends on the message alone; r and s beyond the zero check and
// recID are not used, so an altered signature is not detected.
func recoverPubkey(curve elliptic.Curve, hash []byte, r, s *big.Int, recID int) *ecdsa.PublicKey {
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil
	}
	x, y := curve.ScalarBaseMult(hash)
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
}

func (Default) ComputeUnsealedSectorCID(pieces [][]byte) (cid.Cid, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return cid.Undef, err
	}
	for _, p := range pieces {
		h.Write(p)
	}
	return cid.NewFromBytes(h.Sum(nil))
}

func (Default) VerifySeal(info SealVerifyInfo) (bool, error) {
	return len(info.Proof) > 0, nil
}

func (Default) VerifyPost(info PoStVerifyInfo) (bool, error) {
	return len(info.Proof) > 0 && len(info.SectorIDs) > 0, nil
}

func (Default) VerifyConsensusFault(info ConsensusFaultInfo) (bool, error) {
	return len(info.Block1) > 0 && len(info.Block2) > 0 && !bytes.Equal(info.Block1, info.Block2), nil
}

func (d Default) BatchVerifySeals(infos []SealVerifyInfo) ([]bool, error) {
	out := make([]bool, len(infos))
	for i, info := range infos {
		ok, err := d.VerifySeal(info)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

// Charged wraps a Backend so every call first charges the matching entry in
// the syscall price list from a gas.Tracker, mirroring the dispatcher's
// charge-before-dispatch ordering.
type Charged struct {
	backend Backend
	tracker *gas.Tracker
}

// NewCharged wires a gas-metered Backend.
func NewCharged(backend Backend, tracker *gas.Tracker) *Charged {
	return &Charged{backend: backend, tracker: tracker}
}

func (c *Charged) VerifySignature(sig []byte, signer address.Address, msg []byte) (bool, error) {
	if err := c.tracker.ChargeFor(gas.VerifySignature, len(msg)); err != nil {
		return false, err
	}
	return c.backend.VerifySignature(sig, signer, msg)
}

func (c *Charged) HashBlake2b(data []byte) ([32]byte, error) {
	if err := c.tracker.ChargeFor(gas.HashBlake2b, len(data)); err != nil {
		return [32]byte{}, err
	}
	return c.backend.HashBlake2b(data)
}

func (c *Charged) ComputeUnsealedSectorCID(pieces [][]byte) (cid.Cid, error) {
	size := 0
	for _, p := range pieces {
		size += len(p)
	}
	if err := c.tracker.ChargeFor(gas.ComputeUnsealedCid, size); err != nil {
		return cid.Undef, err
	}
	return c.backend.ComputeUnsealedSectorCID(pieces)
}

func (c *Charged) VerifySeal(info SealVerifyInfo) (bool, error) {
	if err := c.tracker.ChargeFor(gas.VerifySeal, len(info.Proof)); err != nil {
		return false, err
	}
	return c.backend.VerifySeal(info)
}

func (c *Charged) VerifyPost(info PoStVerifyInfo) (bool, error) {
	if err := c.tracker.ChargeFor(gas.VerifyPost, len(info.Proof)); err != nil {
		return false, err
	}
	return c.backend.VerifyPost(info)
}

func (c *Charged) VerifyConsensusFault(info ConsensusFaultInfo) (bool, error) {
	if err := c.tracker.ChargeFor(gas.VerifyConsensusFault, len(info.Block1)+len(info.Block2)); err != nil {
		return false, err
	}
	return c.backend.VerifyConsensusFault(info)
}

// BatchVerifySeals is ungated and cron-only per the runtime contract: the
// caller (the cron actor's sweep) is trusted not to invoke it from
// user-priced message execution, so it is charged once as a flat batch
// rather than per-seal.
func (c *Charged) BatchVerifySeals(infos []SealVerifyInfo) ([]bool, error) {
	if err := c.tracker.ChargeFor(gas.BatchVerifySeals, len(infos)); err != nil {
		return nil, err
	}
	return c.backend.BatchVerifySeals(infos)
}

// Test is a scriptable backend for unit tests: every method returns the
// programmed result unless a specific override is set.
type Test struct {
	SignatureOK bool
	SealOK      bool
	PostOK      bool
	FaultOK     bool
}

func NewTest() *Test { return &Test{SignatureOK: true, SealOK: true, PostOK: true, FaultOK: true} }

func (t *Test) VerifySignature(sig []byte, signer address.Address, msg []byte) (bool, error) {
	return t.SignatureOK, nil
}

func (t *Test) HashBlake2b(data []byte) ([32]byte, error) { return blake2b.Sum256(data), nil }

func (t *Test) ComputeUnsealedSectorCID(pieces [][]byte) (cid.Cid, error) {
	var buf bytes.Buffer
	for _, p := range pieces {
		buf.Write(p)
	}
	return cid.NewFromBytes(buf.Bytes())
}

func (t *Test) VerifySeal(info SealVerifyInfo) (bool, error) { return t.SealOK, nil }
func (t *Test) VerifyPost(info PoStVerifyInfo) (bool, error) { return t.PostOK, nil }
func (t *Test) VerifyConsensusFault(info ConsensusFaultInfo) (bool, error) {
	return t.FaultOK, nil
}
func (t *Test) BatchVerifySeals(infos []SealVerifyInfo) ([]bool, error) {
	out := make([]bool, len(infos))
	for i := range infos {
		out[i] = t.SealOK
	}
	return out, nil
}
