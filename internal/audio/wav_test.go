package audio

import (
	"encoding/binary"
	"testing"
)

func TestPCM16FromFloat32(t *testing.T) {
	pcm := PCM16FromFloat32([]float32{0, 1, -1, 2, -2, 0.5})
	if len(pcm) != 12 {
		t.Fatalf("pcm length = %d, want 12", len(pcm))
	}
	samples := make([]int16, 6)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	if samples[0] != 0 {
		t.Fatalf("sample 0 = %d, want 0", samples[0])
	}
	if samples[1] != 32767 {
		t.Fatalf("sample 1 = %d, want 32767", samples[1])
	}
	if samples[2] != -32767 {
		t.Fatalf("sample 2 = %d, want -32767", samples[2])
	}
	if samples[3] != 32767 || samples[4] != -32767 {
		t.Fatalf("out-of-range samples not clamped: %d, %d", samples[3], samples[4])
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := PCM16FromFloat32(make([]float32, 100))
	wav, err := EncodeWAVPCM16LE(pcm, 22050, 2)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 2 {
		t.Fatalf("channels = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 22050 {
		t.Fatalf("sample rate = %d, want 22050", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
}
