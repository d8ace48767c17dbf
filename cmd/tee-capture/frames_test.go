package main

import (
	"image/color"
	"strings"
	"testing"

	streamtee "github.com/e7canasta/orion-care-sensor/modules/stream-tee"
)

// rgbFrame builds a w×h frame whose pixel (x, y) is (x, y, 7), with each row
// padded to stride bytes.
func rgbFrame(w, h, stride int) streamtee.Frame {
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*stride+x*3+0] = byte(x)
			data[y*stride+x*3+1] = byte(y)
			data[y*stride+x*3+2] = 7
		}
	}
	return streamtee.Frame{
		Format: streamtee.Format{MediaKind: "video/x-raw", Width: w, Height: h, PixelFormat: "RGB"},
		Data:   data,
	}
}

func TestFrameImage_RowStride(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		stride int
	}{
		{"packed", 4, 3, 12},
		{"padded_to_4_bytes", 3, 2, 12},
		{"odd_width", 5, 4, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := frameImage(rgbFrame(tt.w, tt.h, tt.stride))
			if err != nil {
				t.Fatalf("frameImage() error = %v", err)
			}
			for y := 0; y < tt.h; y++ {
				for x := 0; x < tt.w; x++ {
					want := color.RGBA{R: byte(x), G: byte(y), B: 7, A: 255}
					if got := img.RGBAAt(x, y); got != want {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestFrameImage_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		frame   streamtee.Frame
		wantErr string
	}{
		{"no_dimensions", streamtee.Frame{Format: streamtee.Format{PixelFormat: "RGB"}}, "no dimensions"},
		{"gray", streamtee.Frame{Format: streamtee.Format{Width: 2, Height: 2, PixelFormat: "GRAY8"}, Data: make([]byte, 4)}, "unsupported"},
		{"short", streamtee.Frame{Format: streamtee.Format{Width: 4, Height: 2, PixelFormat: "RGB"}, Data: make([]byte, 10)}, "too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := frameImage(tt.frame)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("frameImage() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
