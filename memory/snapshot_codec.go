package memory

import (
	"bytes"
	"encoding/gob"

	"github.com/relaykit/kernel/kernelerr"
)

// encodeSnapshot/decodeSnapshot serialize the in-process map for Snapshot
// and Backup payloads. gob is sufficient here: snapshots never cross
// language or version boundaries, they only round-trip within one process
// lifetime or one backup file written and read by this same module.
func encodeSnapshot(data map[string][]byte) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(data)
	return buf.Bytes()
}

func decodeSnapshot(raw []byte) (map[string][]byte, error) {
	var data map[string][]byte
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory", "decodeSnapshot", "failed to decode snapshot", err)
	}
	return data, nil
}
