package bsda

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/minio/crc64nvme"
)

// The only checksum recorded in the ledger.
const ChecksumCRC64NVME = "CRC64NVME"

func newHasher(checksumType string) (hash.Hash64, error) {
	switch checksumType {
	case ChecksumCRC64NVME:
		return crc64nvme.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum type: %s", checksumType)
	}
}

// written as base64 of the big endian value
func encodeSum(h hash.Hash64) string {
	return uint64ToBase64String(h.Sum64())
}

func CalculateChecksum(checksumType string, data []byte) (string, error) {
	h, err := newHasher(checksumType)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return encodeSum(h), nil
}

// ChecksumFile streams a local file through the requested checksum.
func ChecksumFile(checksumType string, fname string) (string, error) {
	h, err := newHasher(checksumType)
	if err != nil {
		return "", err
	}
	localf, err := os.Open(fname)
	if err != nil {
		return "", err
	}
	defer localf.Close()
	if _, err := io.CopyBuffer(h, localf, make([]byte, copyBufferSize())); err != nil {
		return "", err
	}
	return encodeSum(h), nil
}

func uint64ToBase64String(num uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, num)

	return base64.StdEncoding.EncodeToString(buf)
}
