package transform

import (
	"bytes"
	"encoding/binary"
	"errors"
)

type densityUnits uint8

const (
	densityNoUnits densityUnits = iota
	densityPxPerInch
	densityPxPerCm
)

// ensureJFIF inserts JFIF APP0 segment right after SOI when it is missing.
// image/jpeg never writes one and some readers refuse such covers.
func ensureJFIF(data []byte, units densityUnits, xdensity, ydensity uint16) ([]byte, bool, error) {
	if len(data) < 4 {
		return nil, false, errors.New("jpeg too small")
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		return nil, false, errors.New("not a jpeg")
	}

	marker := []byte{0xFF, 0xE0}
	// "JFIF\0" and version 1.02
	jfif := []byte{0x4A, 0x46, 0x49, 0x46, 0x00, 0x01, 0x02}

	if data[2] == marker[0] && data[3] == marker[1] {
		return data, false, nil
	}

	buf := new(bytes.Buffer)
	buf.Grow(len(data) + 18)
	buf.Write(data[:2])
	buf.Write(marker)
	_ = binary.Write(buf, binary.BigEndian, uint16(16)) // segment length
	buf.Write(jfif)
	buf.WriteByte(byte(units))
	_ = binary.Write(buf, binary.BigEndian, xdensity)
	_ = binary.Write(buf, binary.BigEndian, ydensity)
	buf.Write([]byte{0, 0}) // no thumbnail
	buf.Write(data[2:])
	return buf.Bytes(), true, nil
}
