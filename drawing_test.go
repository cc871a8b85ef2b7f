package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/stuartleeks/home-dash/cam-viewer/data"
	"github.com/stuartleeks/home-dash/cam-viewer/viewer"
)

func solidFrame(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, viewer.SourceWidth/8, viewer.SourceHeight/8))
	for x := 0; x < img.Bounds().Dx(); x++ {
		for y := 0; y < img.Bounds().Dy(); y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestDrawViewerImageLetterboxes(t *testing.T) {
	state := viewer.ViewState{}
	dc, err := drawViewerImage(state, solidFrame(color.RGBA{R: 255, A: 255}), 2048, 576)
	if err != nil {
		t.Fatalf("drawViewerImage: %v", err)
	}
	img := dc.Image()
	if b := img.Bounds(); b.Dx() != 2048 || b.Dy() != 576 {
		t.Fatalf("bounds = %v", b)
	}

	// left margin keeps the background
	if r, g, b := rgbAt(img, 100, 300); r != 0xB0 || g != 0xC4 || b != 0xDE {
		t.Fatalf("margin pixel = %02x%02x%02x, want background", r, g, b)
	}
	// centre shows the frame
	if r, g, b := rgbAt(img, 1024, 300); r < 200 || g > 50 || b > 50 {
		t.Fatalf("centre pixel = %02x%02x%02x, want frame red", r, g, b)
	}
}

func TestDrawViewerImageOfflineIgnoresFrame(t *testing.T) {
	state := viewer.ViewState{IsOffline: true}
	dc, err := drawViewerImage(state, solidFrame(color.RGBA{R: 255, A: 255}), 1024, 576)
	if err != nil {
		t.Fatalf("drawViewerImage: %v", err)
	}
	// a corner far from the placeholder glyph and overlays stays background
	if r, g, b := rgbAt(dc.Image(), 900, 60); r != 0xB0 || g != 0xC4 || b != 0xDE {
		t.Fatalf("pixel = %02x%02x%02x, want background", r, g, b)
	}
}

func TestDrawViewerImageWithTemperature(t *testing.T) {
	state := viewer.ViewState{Temperature: &data.Temperature{Celsius: 20.5}}
	if _, err := drawViewerImage(state, nil, 1024, 576); err != nil {
		t.Fatalf("drawViewerImage: %v", err)
	}
}

func TestDrawViewerImageInvalidSize(t *testing.T) {
	if _, err := drawViewerImage(viewer.ViewState{}, nil, 0, 10); err == nil {
		t.Fatal("expected error for empty size")
	}
}
