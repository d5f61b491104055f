package image

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantStart uint32
		wantData  []byte
		wantErr   interface{}
	}{
		{
			name: "single data record",
			input: ":0400100001020304E2\n" +
				":00000001FF\n",
			wantStart: 0x0010,
			wantData:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name: "gap padded with FF",
			input: ":020010000102EB\n" +
				":02001400AABB85\n" +
				":00000001FF\n",
			wantStart: 0x0010,
			wantData:  []byte{0x01, 0x02, 0xFF, 0xFF, 0xAA, 0xBB},
		},
		{
			name: "reversed record order",
			input: ":02001400AABB85\n" +
				":020010000102EB\n" +
				":00000001FF\n",
			wantStart: 0x0010,
			wantData:  []byte{0x01, 0x02, 0xFF, 0xFF, 0xAA, 0xBB},
		},
		{
			name: "extended linear address",
			input: ":020000040001F9\n" +
				":020000000102FB\n" +
				":00000001FF\n",
			wantStart: 0x10000,
			wantData:  []byte{0x01, 0x02},
		},
		{
			name: "extended segment address",
			input: ":020000021000EC\n" +
				":020000000102FB\n" +
				":00000001FF\n",
			wantStart: 0x10000,
			wantData:  []byte{0x01, 0x02},
		},
		{
			name:    "flipped checksum fails whole decode",
			input:   ":0400100001020304E3\n:00000001FF\n",
			wantErr: &ChecksumError{},
		},
		{
			name:    "missing colon",
			input:   "0400100001020304E2\n:00000001FF\n",
			wantErr: &MalformedRecordError{},
		},
		{
			name:    "odd hex digits",
			input:   ":040010000102030\n:00000001FF\n",
			wantErr: &MalformedRecordError{},
		},
		{
			name:    "length mismatch",
			input:   ":05001000010203E5\n:00000001FF\n",
			wantErr: &MalformedRecordError{},
		},
		{
			name:    "unknown record type",
			input:   ":020000060102F5\n:00000001FF\n",
			wantErr: &MalformedRecordError{},
		},
		{
			name:    "overlapping records",
			input:   ":0400100001020304E2\n:02001200AABB87\n:00000001FF\n",
			wantErr: &MalformedRecordError{},
		},
		{
			name:    "missing EOF record",
			input:   ":0400100001020304E2\n",
			wantErr: &MalformedRecordError{},
		},
		{
			name:    "no data records",
			input:   ":00000001FF\n",
			wantErr: &MalformedRecordError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeHex(strings.NewReader(tt.input))

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				switch tt.wantErr.(type) {
				case *ChecksumError:
					var ce *ChecksumError
					if !errors.As(err, &ce) {
						t.Fatalf("error = %v (%T), want *ChecksumError", err, err)
					}
				case *MalformedRecordError:
					var me *MalformedRecordError
					if !errors.As(err, &me) {
						t.Fatalf("error = %v (%T), want *MalformedRecordError", err, err)
					}
				}
				if img != nil {
					t.Error("failed decode returned a partial image")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.Start != tt.wantStart {
				t.Errorf("Start = 0x%X, want 0x%X", img.Start, tt.wantStart)
			}
			if !bytes.Equal(img.Data, tt.wantData) {
				t.Errorf("Data = %X, want %X", img.Data, tt.wantData)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		start     uint32
		size      int
		recordLen int
	}{
		{name: "small image", start: 0x0000, size: 100, recordLen: 16},
		{name: "offset start", start: 0x1000, size: 256, recordLen: 16},
		{name: "32 byte records", start: 0x1000, size: 256, recordLen: 32},
		{name: "unaligned tail", start: 0x0010, size: 53, recordLen: 16},
		{name: "crosses 64k boundary", start: 0xFF00, size: 0x400, recordLen: 16},
		{name: "starts above 64k", start: 0x10000, size: 64, recordLen: 16},
		{name: "large image", start: 0x1000, size: 0x20000, recordLen: 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i * 7)
			}
			img := New(tt.start, data)

			var buf bytes.Buffer
			if err := EncodeHex(&buf, img, tt.recordLen); err != nil {
				t.Fatalf("EncodeHex: %v", err)
			}

			got, err := DecodeHex(&buf)
			if err != nil {
				t.Fatalf("DecodeHex: %v", err)
			}
			if got.Start != img.Start {
				t.Errorf("Start = 0x%X, want 0x%X", got.Start, img.Start)
			}
			if !bytes.Equal(got.Data, img.Data) {
				t.Error("round-tripped data differs")
			}
		})
	}
}

func TestEncodeHexRejectsOversizeRecords(t *testing.T) {
	img := New(0, []byte{1, 2, 3})
	if err := EncodeHex(&bytes.Buffer{}, img, 64); err == nil {
		t.Fatal("expected error for oversize record length")
	}
}

func BenchmarkDecodeHex(b *testing.B) {
	data := make([]byte, 0x8000)
	for i := range data {
		data[i] = byte(i)
	}
	var buf bytes.Buffer
	if err := EncodeHex(&buf, New(0, data), DefaultRecordLen); err != nil {
		b.Fatal(err)
	}
	text := buf.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeHex(strings.NewReader(text)); err != nil {
			b.Fatal(err)
		}
	}
}
