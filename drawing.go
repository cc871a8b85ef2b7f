package main

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/stuartleeks/home-dash/cam-viewer/viewer"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	backgroundColor  = "#B0C4DE" // lightsteelblue
	overlayColor     = "#FFFFFF"
	buttonFillColor  = "#00000066"
	placeholderColor = "#FFFFFFB3"

	temperatureFontSize = 16
	inertAlpha          = 0.4
)

var (
	regularFont     *truetype.Font
	regularFontErr  error
	regularFontOnce sync.Once
)

func loadFontFace(size float64) (font.Face, error) {
	regularFontOnce.Do(func() {
		regularFont, regularFontErr = truetype.Parse(goregular.TTF)
	})
	if regularFontErr != nil {
		return nil, fmt.Errorf("failed to load font: %w", regularFontErr)
	}
	return truetype.NewFace(regularFont, &truetype.Options{Size: size}), nil
}

// drawViewerImage renders the screen for state into a width x height image.
// frame may be nil, in which case the image area is left blank.
func drawViewerImage(state viewer.ViewState, frame image.Image, width int, height int) (*gg.Context, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	layout := viewer.ComputeLayout(float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	dc := gg.NewContextForRGBA(img)
	dc.SetHexColor(backgroundColor)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	if state.IsOffline {
		drawPlaceholder(dc, layout)
	} else if frame != nil {
		drawFrame(img, frame, layout.Image)
	}

	drawPlayStop(dc, layout.Button, state.IsStreaming, state.IsOffline)

	if err := drawTemperature(dc, state.TemperatureLabel(), layout); err != nil {
		return nil, err
	}
	return dc, nil
}

func drawFrame(dst *image.RGBA, frame image.Image, area viewer.Rect) {
	target := image.Rect(
		int(math.Round(area.X)),
		int(math.Round(area.Y)),
		int(math.Round(area.X+area.W)),
		int(math.Round(area.Y+area.H)),
	)
	if target.Empty() {
		return
	}
	draw.BiLinear.Scale(dst, target, frame, frame.Bounds(), draw.Over, nil)
}

// drawPlaceholder draws a crossed-out camera across the whole container.
func drawPlaceholder(dc *gg.Context, layout viewer.Layout) {
	w, h := layout.ContainerWidth, layout.ContainerHeight
	size := math.Min(w, h) * 0.4
	cx, cy := w/2, h/2

	dc.SetHexColor(placeholderColor)
	dc.SetLineWidth(math.Max(2, size/20))

	bodyW, bodyH := size, size*0.65
	dc.DrawRoundedRectangle(cx-bodyW/2, cy-bodyH/2, bodyW, bodyH, size/10)
	dc.Stroke()
	dc.DrawCircle(cx, cy, bodyH/3)
	dc.Stroke()
	dc.DrawRectangle(cx-bodyW/4, cy-bodyH/2-size/10, bodyW/5, size/10)
	dc.Fill()

	dc.DrawLine(cx-size*0.6, cy-size*0.6, cx+size*0.6, cy+size*0.6)
	dc.Stroke()
}

// drawPlayStop draws the round toggle: a triangle while showing stills, a
// square while streaming. It is faded when it cannot be used.
func drawPlayStop(dc *gg.Context, button viewer.Rect, streaming bool, inert bool) {
	r := button.W / 2
	cx, cy := button.X+r, button.Y+r

	dc.Push()
	defer dc.Pop()

	dc.SetHexColor(buttonFillColor)
	dc.DrawCircle(cx, cy, r)
	dc.Fill()

	alpha := 1.0
	if inert {
		alpha = inertAlpha
	}
	dc.SetColor(color.NRGBA{R: 255, G: 255, B: 255, A: uint8(255 * alpha)})

	glyph := r * 0.9
	if streaming {
		side := glyph * 1.1
		dc.DrawRectangle(cx-side/2, cy-side/2, side, side)
	} else {
		// optically centre the triangle
		dc.MoveTo(cx-glyph*0.4, cy-glyph*0.6)
		dc.LineTo(cx+glyph*0.65, cy)
		dc.LineTo(cx-glyph*0.4, cy+glyph*0.6)
		dc.ClosePath()
	}
	dc.Fill()
}

func drawTemperature(dc *gg.Context, label string, layout viewer.Layout) error {
	if label == "" {
		return nil
	}
	face, err := loadFontFace(temperatureFontSize)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)
	dc.SetHexColor(overlayColor)
	drawStringBottomRight(dc, label, layout.TemperatureAnchorX, layout.TemperatureAnchorY)
	return nil
}

func drawStringBottomRight(dc *gg.Context, text string, x, y float64) {
	w, _ := dc.MeasureString(text)
	dc.DrawString(text, x-w, y)
}
