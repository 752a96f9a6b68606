package ledger

import "encoding/binary"

// Bucket names for bbolt storage.
var (
	bucketAccounts = []byte("accounts") // address -> encoded Account
	bucketMeta     = []byte("meta")     // ledger bookkeeping

	keySchemaVersion = []byte("schema_version")
)

const schemaVersion = 1

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b[:8])
}
