package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadWAV читает PCM16 mono WAV файл и возвращает семплы и частоту
// дискретизации. Стерео сводится в моно усреднением каналов
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("audio: short WAV header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a WAV file: %s", path)
	}

	var sampleRate uint32
	var channels, bits uint16
	var data []byte

	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			break
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			chunk := make([]byte, size)
			if _, err := io.ReadFull(f, chunk); err != nil {
				return nil, 0, err
			}
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			bits = binary.LittleEndian.Uint16(chunk[14:16])
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, err
			}
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, 0, err
			}
		}
		if data != nil && sampleRate != 0 {
			break
		}
	}

	if data == nil || sampleRate == 0 {
		return nil, 0, fmt.Errorf("audio: WAV without fmt/data chunks: %s", path)
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("audio: only PCM16 WAV supported, got %d bits", bits)
	}

	samples := PCM16ToFloat32(data)
	if channels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2
		}
		samples = mono
	}

	return samples, int(sampleRate), nil
}

// WriteWAV записывает float32 семплы как PCM16 mono WAV файл
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pcm := Float32ToPCM16(samples)
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * 2)

	f.WriteString("RIFF")
	binary.Write(f, binary.LittleEndian, uint32(36+dataSize))
	f.WriteString("WAVE")

	f.WriteString("fmt ")
	binary.Write(f, binary.LittleEndian, uint32(16))
	binary.Write(f, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(f, binary.LittleEndian, uint16(1)) // mono
	binary.Write(f, binary.LittleEndian, uint32(sampleRate))
	binary.Write(f, binary.LittleEndian, byteRate)
	binary.Write(f, binary.LittleEndian, uint16(2))  // block align
	binary.Write(f, binary.LittleEndian, uint16(16)) // bits

	f.WriteString("data")
	binary.Write(f, binary.LittleEndian, dataSize)
	if _, err := f.Write(pcm); err != nil {
		return err
	}
	return nil
}
