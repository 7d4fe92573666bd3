// Package adb is a client for the Android device-debugging protocol, speaking
// to a daemon over any packet-shaped duplex transport.
package adb

import "encoding/binary"

// Wire commands, little-endian ASCII tags.
const (
	cmdConnect uint32 = 0x4e584e43 // CNXN
	cmdAuth    uint32 = 0x48545541 // AUTH
	cmdOpen    uint32 = 0x4e45504f // OPEN
	cmdOkay    uint32 = 0x59414b4f // OKAY
	cmdWrite   uint32 = 0x45545257 // WRTE
	cmdClose   uint32 = 0x45534c43 // CLSE
)

const (
	protocolVersion uint32 = 0x01000001
	// MaxPayload is the largest packet payload this client offers or accepts.
	MaxPayload = 1024 * 1024

	headerLen = 24
)

// AUTH packet subtypes (arg0).
const (
	authToken        uint32 = 1
	authSignature    uint32 = 2
	authRSAPublicKey uint32 = 3
)

// Packet is one unit of the device-debugging protocol. The transport bridge
// routes Packets without inspecting them; only this package reads the fields.
type Packet struct {
	Command uint32
	Arg0    uint32
	Arg1    uint32
	Payload []byte
}

func checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

func encodePacket(p Packet) []byte {
	buf := make([]byte, headerLen+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:], p.Command)
	binary.LittleEndian.PutUint32(buf[4:], p.Arg0)
	binary.LittleEndian.PutUint32(buf[8:], p.Arg1)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(p.Payload)))
	binary.LittleEndian.PutUint32(buf[16:], checksum(p.Payload))
	binary.LittleEndian.PutUint32(buf[20:], ^p.Command)
	copy(buf[headerLen:], p.Payload)
	return buf
}
