// Package codec implements the byte-exact binary interchange format for
// depth snapshots.
package codec

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	. "mjolnir/internal/common"
)

// Wire layout, big-endian throughout:
//
//	magic           u32  'LOB1'
//	version         u16  1
//	symbol_len      u8
//	reserved        u8
//	num_bids        u32
//	num_asks        u32
//	timestamp       u64
//	sequence_number u64
//	symbol          symbol_len bytes
//	bids            num_bids x {price i64, quantity u64}
//	asks            num_asks x {price i64, quantity u64}
//	checksum        u32  CRC32C of everything above
//
// Order counts are not carried; decoded levels report zero.
const (
	depthMagic   = 0x4C4F4231 // 'LOB1'
	depthVersion = 1

	headerLen = 32
	levelLen  = 16
)

var (
	ErrShortBuffer = errors.New("depth snapshot buffer too short")
	ErrBadMagic    = errors.New("depth snapshot magic mismatch")
	ErrBadChecksum = errors.New("depth snapshot checksum mismatch")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeDepth serializes a snapshot. Symbols longer than 255 bytes are
// truncated to fit the u8 length field.
func EncodeDepth(snapshot DepthSnapshot) []byte {
	symbol := []byte(snapshot.Symbol)
	if len(symbol) > 255 {
		symbol = symbol[:255]
	}

	total := headerLen + len(symbol) + (len(snapshot.Bids)+len(snapshot.Asks))*levelLen + 4
	buf := make([]byte, total)

	binary.BigEndian.PutUint32(buf[0:4], depthMagic)
	binary.BigEndian.PutUint16(buf[4:6], depthVersion)
	buf[6] = uint8(len(symbol))
	buf[7] = 0 // reserved
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(snapshot.Bids)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(snapshot.Asks)))
	binary.BigEndian.PutUint64(buf[16:24], snapshot.Timestamp)
	binary.BigEndian.PutUint64(buf[24:32], snapshot.SequenceNumber)

	offset := headerLen
	copy(buf[offset:], symbol)
	offset += len(symbol)

	offset = putLevels(buf, offset, snapshot.Bids)
	offset = putLevels(buf, offset, snapshot.Asks)

	checksum := crc32.Checksum(buf[:offset], castagnoli)
	binary.BigEndian.PutUint32(buf[offset:], checksum)

	return buf
}

func putLevels(buf []byte, offset int, levels []PriceLevel) int {
	for _, level := range levels {
		binary.BigEndian.PutUint64(buf[offset:], uint64(level.Price))
		binary.BigEndian.PutUint64(buf[offset+8:], level.Quantity)
		offset += levelLen
	}
	return offset
}

// DecodeDepth parses a serialized snapshot. On any structural problem the
// returned snapshot is empty and the error says why.
func DecodeDepth(data []byte) (DepthSnapshot, error) {
	if len(data) < headerLen+4 {
		return DepthSnapshot{}, ErrShortBuffer
	}
	if binary.BigEndian.Uint32(data[0:4]) != depthMagic {
		return DepthSnapshot{}, ErrBadMagic
	}

	symbolLen := int(data[6])
	numBids := int(binary.BigEndian.Uint32(data[8:12]))
	numAsks := int(binary.BigEndian.Uint32(data[12:16]))

	total := headerLen + symbolLen + (numBids+numAsks)*levelLen + 4
	if len(data) < total {
		return DepthSnapshot{}, ErrShortBuffer
	}

	payloadEnd := total - 4
	want := binary.BigEndian.Uint32(data[payloadEnd:total])
	if got := crc32.Checksum(data[:payloadEnd], castagnoli); got != want {
		return DepthSnapshot{}, ErrBadChecksum
	}

	snapshot := DepthSnapshot{
		Timestamp:      binary.BigEndian.Uint64(data[16:24]),
		SequenceNumber: binary.BigEndian.Uint64(data[24:32]),
	}

	offset := headerLen
	snapshot.Symbol = string(data[offset : offset+symbolLen])
	offset += symbolLen

	snapshot.Bids, offset = getLevels(data, offset, numBids)
	snapshot.Asks, _ = getLevels(data, offset, numAsks)

	return snapshot, nil
}

func getLevels(data []byte, offset, count int) ([]PriceLevel, int) {
	if count == 0 {
		return nil, offset
	}
	levels := make([]PriceLevel, 0, count)
	for i := 0; i < count; i++ {
		levels = append(levels, PriceLevel{
			Price:    Price(binary.BigEndian.Uint64(data[offset:])),
			Quantity: binary.BigEndian.Uint64(data[offset+8:]),
		})
		offset += levelLen
	}
	return levels, offset
}
