package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	streamtee "github.com/e7canasta/orion-care-sensor/modules/stream-tee"
)

// frameImage converts an RGB or RGBA frame to an image.
//
// Rows may be padded: the engine aligns RGB rows to 4 bytes, so the row
// stride is derived from the buffer size rather than the width.
func frameImage(frame streamtee.Frame) (*image.RGBA, error) {
	w, h := frame.Format.Width, frame.Format.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("frame has no dimensions")
	}

	var bpp int
	switch frame.Format.PixelFormat {
	case "RGB":
		bpp = 3
	case "RGBA", "RGBx":
		bpp = 4
	default:
		return nil, fmt.Errorf("unsupported pixel format for PNG: %s", frame.Format.PixelFormat)
	}

	stride := len(frame.Data) / h
	if stride < w*bpp {
		return nil, fmt.Errorf("frame too short: %d bytes for %dx%d %s", len(frame.Data), w, h, frame.Format.PixelFormat)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := frame.Data[y*stride:]
		for x := 0; x < w; x++ {
			src := x * bpp
			dst := y*img.Stride + x*4
			img.Pix[dst+0] = row[src+0] // R
			img.Pix[dst+1] = row[src+1] // G
			img.Pix[dst+2] = row[src+2] // B
			img.Pix[dst+3] = 255        // A (opaque)
		}
	}
	return img, nil
}

// saveFrame writes an RGB or RGBA frame to disk as PNG
func saveFrame(outputDir string, frame streamtee.Frame) error {
	img, err := frameImage(frame)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("frame_%06d_%s.png", frame.Seq, frame.Timestamp.Format("20060102_150405.000"))
	file, err := os.Create(filepath.Join(outputDir, filename))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}
