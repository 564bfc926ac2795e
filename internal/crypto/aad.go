package icrypto

import (
	"encoding/binary"
)

const (
	aadCredential = "CREDENTIAL"
	aadRecordKey  = "RECORDKEY"
)

// AADCredential binds a sealed credential entry to its namespace and id, so
// a ciphertext copied to another origin or slot fails to open.
func AADCredential(namespace, recordID string, ver int) []byte {
	return buildAAD(aadCredential, namespace, recordID, ver)
}

func AADRecordKey(namespace string, ver int) []byte {
	return buildAAD(aadRecordKey, namespace, ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			res = append(res, b...)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
