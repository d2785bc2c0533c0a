package boltstore

import (
	"encoding/binary"

	"github.com/kruton/etamoo/pkg/value"
)

// Bucket names.
var (
	bucketMeta    = []byte("meta")
	bucketObjects = []byte("objects")
	bucketPlayers = []byte("players")
)

// Meta keys.
var (
	keyMaxObject = []byte("maxobject")
	keyVersion   = []byte("version")
)

// formatVersion is bumped whenever the on-disk encoding changes shape.
const formatVersion = 1

// refToKey encodes an object number as a big-endian key so bucket order
// follows object order.
func refToKey(id value.Obj) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func keyToRef(b []byte) value.Obj {
	if len(b) != 8 {
		return value.Nothing
	}
	return value.Obj(binary.BigEndian.Uint64(b))
}

func intToKey(n int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func keyToInt(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
