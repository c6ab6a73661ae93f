package sharedsnap

// snapshot_codec.go implements the wire format for snapshot dumps.
//
// A dump is the serialized form of a snapshot stored in a dynamic shared
// segment for cursor declarations. The segment is written once by the writer
// and restored by any reader that syncs the cursor's tag, possibly much
// later, so the format carries its own version, compression type, and
// checksum.
//
// Layout (all integers little-endian):
//
//	magic     fixed32   dumpMagic
//	version   byte      dumpFormatVersion
//	compress  byte      compression.Type of the body
//	checksum  byte      checksum.Type of the trailer
//	bodyLen   fixed32   stored (post-compression) body length
//	body      bodyLen   xmin fixed32, xmax fixed32, curcid fixed32,
//	                    xcnt varint32, xcnt * xip fixed32
//	sum       fixed64   checksum over the stored body

import (
	"fmt"

	"github.com/parallaxdb/sharedsnap/internal/checksum"
	"github.com/parallaxdb/sharedsnap/internal/compression"
	"github.com/parallaxdb/sharedsnap/internal/encoding"
)

const (
	dumpMagic         uint32 = 0x50414e53 // "SNAP"
	dumpFormatVersion byte   = 1

	// dumpHeaderSize is magic + version + compress + checksum + bodyLen.
	dumpHeaderSize = 4 + 1 + 1 + 1 + 4

	// dumpTrailerSize is the fixed64 checksum.
	dumpTrailerSize = 8
)

// serializeSnapshot encodes snap into a self-describing dump payload.
// The result's length is the exact footprint of the dump segment.
func serializeSnapshot(snap *Snapshot, comp compression.Type, sum checksum.Type) ([]byte, error) {
	body := make([]byte, 0, 12+encoding.VarintLength(uint32(len(snap.XIP)))+4*len(snap.XIP))
	body = encoding.AppendFixed32(body, uint32(snap.Xmin))
	body = encoding.AppendFixed32(body, uint32(snap.Xmax))
	body = encoding.AppendFixed32(body, uint32(snap.CurCID))
	body = encoding.AppendVarint32(body, uint32(len(snap.XIP)))
	for _, xid := range snap.XIP {
		body = encoding.AppendFixed32(body, uint32(xid))
	}

	stored, err := compression.Compress(comp, body)
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}

	out := make([]byte, 0, dumpHeaderSize+len(stored)+dumpTrailerSize)
	out = encoding.AppendFixed32(out, dumpMagic)
	out = append(out, dumpFormatVersion, byte(comp), byte(sum))
	out = encoding.AppendFixed32(out, uint32(len(stored)))
	out = append(out, stored...)
	out = encoding.AppendFixed64(out, checksum.Sum(sum, stored))
	return out, nil
}

// restoreSnapshot decodes a dump payload produced by serializeSnapshot.
// Any structural damage, version mismatch, or checksum failure yields
// ErrSnapshotCorrupt; a partially restored snapshot is never returned.
func restoreSnapshot(buf []byte) (*Snapshot, error) {
	if len(buf) < dumpHeaderSize+dumpTrailerSize {
		return nil, fmt.Errorf("%w: dump truncated to %d bytes", ErrSnapshotCorrupt, len(buf))
	}

	magic, rest, err := encoding.DecodeFixed32(buf)
	if err != nil || magic != dumpMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrSnapshotCorrupt, magic)
	}
	version := rest[0]
	comp := compression.Type(rest[1])
	sumType := checksum.Type(rest[2])
	rest = rest[3:]
	if version != dumpFormatVersion {
		return nil, fmt.Errorf("%w: unknown dump format version %d", ErrSnapshotCorrupt, version)
	}
	if !comp.IsSupported() || !sumType.IsSupported() {
		return nil, fmt.Errorf("%w: unknown compression %d or checksum %d",
			ErrSnapshotCorrupt, comp, sumType)
	}

	bodyLen, rest, err := encoding.DecodeFixed32(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if uint64(len(rest)) < uint64(bodyLen)+dumpTrailerSize {
		return nil, fmt.Errorf("%w: body length %d exceeds dump of %d bytes",
			ErrSnapshotCorrupt, bodyLen, len(buf))
	}
	stored := rest[:bodyLen]

	wantSum, _, err := encoding.DecodeFixed64(rest[bodyLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if !checksum.Verify(sumType, stored, wantSum) {
		return nil, fmt.Errorf("%w: checksum mismatch (%s)", ErrSnapshotCorrupt, sumType)
	}

	body, err := compression.Decompress(comp, stored)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress (%s): %v", ErrSnapshotCorrupt, comp, err)
	}

	snap := &Snapshot{}
	xmin, body, err := encoding.DecodeFixed32(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	xmax, body, err := encoding.DecodeFixed32(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	curcid, body, err := encoding.DecodeFixed32(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	xcnt, body, err := encoding.DecodeVarint32(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if uint64(len(body)) < 4*uint64(xcnt) {
		return nil, fmt.Errorf("%w: xcnt %d exceeds body", ErrSnapshotCorrupt, xcnt)
	}

	snap.Xmin = TxID(xmin)
	snap.Xmax = TxID(xmax)
	snap.CurCID = CommandID(curcid)
	if xcnt > 0 {
		snap.XIP = make([]TxID, xcnt)
		for i := range snap.XIP {
			var xid uint32
			xid, body, err = encoding.DecodeFixed32(body)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
			}
			snap.XIP[i] = TxID(xid)
		}
	}
	return snap, nil
}
