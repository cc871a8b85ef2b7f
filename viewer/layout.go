package viewer

import "math"

// Source frames are always 1024x576.
const (
	SourceWidth  = 1024
	SourceHeight = 576
)

const (
	overlayInset   = 8
	ButtonDiameter = 36
)

// Rect is an axis-aligned rectangle in container pixels.
type Rect struct {
	X, Y, W, H float64
}

// Layout is the geometry of one rendered screen.
type Layout struct {
	ContainerWidth  float64
	ContainerHeight float64
	MarginV         float64
	MarginH         float64
	Image           Rect
	Button          Rect
	// TemperatureAnchor is the bottom-right corner the label is right/bottom
	// aligned to.
	TemperatureAnchorX float64
	TemperatureAnchorY float64
}

// ComputeMargins returns the letterbox offsets that center a 1024:576 image in
// a width x height container. Both are >= 0 and for positive sizes at least
// one of them is 0.
func ComputeMargins(width, height float64) (marginV, marginH float64) {
	marginV = math.Max(0, (height-width*SourceHeight/SourceWidth)/2)
	marginH = math.Max(0, (width-height*SourceWidth/SourceHeight)/2)
	return marginV, marginH
}

func ComputeLayout(width, height float64) Layout {
	marginV, marginH := ComputeMargins(width, height)
	img := Rect{
		X: marginH,
		Y: marginV,
		W: math.Max(0, width-2*marginH),
		H: math.Max(0, height-2*marginV),
	}
	return Layout{
		ContainerWidth:  width,
		ContainerHeight: height,
		MarginV:         marginV,
		MarginH:         marginH,
		Image:           img,
		Button: Rect{
			X: marginH + overlayInset,
			Y: marginV + overlayInset,
			W: ButtonDiameter,
			H: ButtonDiameter,
		},
		TemperatureAnchorX: width - marginH - overlayInset,
		TemperatureAnchorY: height - marginV - overlayInset,
	}
}
