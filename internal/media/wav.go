package media

import (
	"bytes"
	"encoding/binary"
)

const (
	bytesPerSample = 2 // LINEAR16
	bitsPerSample  = 16
	pcmFormatTag   = 1 // WAV PCM format tag
)

// renderWAV wraps raw LINEAR16 PCM in a RIFF/WAVE container.
func renderWAV(pcm []byte, c Constraints) []byte {
	var buf bytes.Buffer
	byteRate := c.SampleRate * c.Channels * bytesPerSample

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(pcmFormatTag))
	binary.Write(&buf, binary.LittleEndian, uint16(c.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(c.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(bytesPerSample*c.Channels))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
