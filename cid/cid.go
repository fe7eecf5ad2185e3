// Package cid wraps github.com/ipfs/go-cid with the Blake2b-256 multihash
// used throughout the actor core to content-address state tree nodes,
// mirroring the way core/storage.go builds CIDv1/Raw digests for blockstore
// entries.
package cid

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Cid is a content identifier over DAG-CBOR encoded bytes, hashed with
// Blake2b-256 and wrapped as CIDv1.
type Cid struct {
	inner gocid.Cid
}

// Undef is the zero-value CID, distinguished from any real digest.
var Undef = Cid{}

// Codec identifies the multicodec tag used for CBOR-encoded state nodes.
const Codec = gocid.DagCBOR

// NewFromBytes hashes data with Blake2b-256 and wraps it as a CIDv1 DAG-CBOR
// identifier.
func NewFromBytes(data []byte) (Cid, error) {
	digest, err := mh.Sum(data, mh.BLAKE2B_MIN+31, -1)
	if err != nil {
		return Undef, fmt.Errorf("cid: hash data: %w", err)
	}
	return Cid{inner: gocid.NewCidV1(Codec, digest)}, nil
}

// FromBytes parses the canonical binary form of a CID.
func FromBytes(b []byte) (Cid, error) {
	c, err := gocid.Cast(b)
	if err != nil {
		return Undef, fmt.Errorf("cid: cast: %w", err)
	}
	return Cid{inner: c}, nil
}

// FromString parses the textual (multibase) form of a CID.
func FromString(s string) (Cid, error) {
	c, err := gocid.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("cid: decode: %w", err)
	}
	return Cid{inner: c}, nil
}

// Bytes returns the canonical binary form.
func (c Cid) Bytes() []byte { return c.inner.Bytes() }

// String returns the default textual (base32) form.
func (c Cid) String() string {
	if c.Empty() {
		return "<undef>"
	}
	return c.inner.String()
}

// Empty reports whether c is the Undef zero value.
func (c Cid) Empty() bool { return !c.inner.Defined() }

// Equals reports whether two CIDs identify the same content.
func (c Cid) Equals(o Cid) bool { return c.inner.Equals(o.inner) }

// KeyString returns a byte-string form suitable as a map key, since Cid is
// not itself comparable with == across differing internal representations.
func (c Cid) KeyString() string { return string(c.inner.Bytes()) }
