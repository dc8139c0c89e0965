package pipeline

import (
	"encoding/binary"
	"errors"
	"os"
)

// prependSilence splices PCM silence in front of a WAV file's data
// chunk, in place, preserving all other chunks and patching the RIFF
// and data sizes.
func prependSilence(path string, seconds float64) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return errors.New("not a RIFF/WAVE file")
	}

	var (
		sampleRate    uint32
		numChannels   uint16
		bitsPerSample uint16
		dataOffset    = -1
		dataSize      int
	)

	offset := 12
	for offset+8 <= len(raw) {
		chunkID := string(raw[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}

		switch chunkID {
		case "fmt ":
			if size >= 16 {
				numChannels = binary.LittleEndian.Uint16(raw[body+2:])
				sampleRate = binary.LittleEndian.Uint32(raw[body+4:])
				bitsPerSample = binary.LittleEndian.Uint16(raw[body+14:])
			}
		case "data":
			dataOffset = offset
			dataSize = size
		}

		offset = body + size
		if size%2 == 1 {
			// chunk bodies are word aligned
			offset++
		}
	}

	if dataOffset < 0 || sampleRate == 0 || numChannels == 0 || bitsPerSample < 8 {
		return errors.New("malformed WAVE file")
	}

	frameBytes := int(numChannels) * int(bitsPerSample) / 8
	silence := make([]byte, int(float64(sampleRate)*seconds)*frameBytes)

	dataBody := dataOffset + 8
	out := make([]byte, 0, len(raw)+len(silence))
	out = append(out, raw[:dataBody]...)
	out = append(out, silence...)
	out = append(out, raw[dataBody:]...)

	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	binary.LittleEndian.PutUint32(out[dataOffset+4:dataOffset+8], uint32(dataSize+len(silence)))

	return os.WriteFile(path, out, 0o600)
}
