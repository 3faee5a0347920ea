package heightfield

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder (16-bit grayscale heightmaps)
)

// Channel selects which part of an image encodes height.
type Channel int

// Channel constants.
const (
	ChannelLuminance Channel = iota // Gray level (exact for grayscale images)
	ChannelRed
	ChannelGreen
	ChannelBlue
	ChannelAlpha
	ChannelPackedRG // 16-bit height packed as R (high byte) and G (low byte)
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelLuminance:
		return "luminance"
	case ChannelRed:
		return "red"
	case ChannelGreen:
		return "green"
	case ChannelBlue:
		return "blue"
	case ChannelAlpha:
		return "alpha"
	case ChannelPackedRG:
		return "packed_rg"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// ParseChannel converts a channel name to a Channel. Empty means luminance.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "luminance", "gray", "grey":
		return ChannelLuminance, nil
	case "red", "r":
		return ChannelRed, nil
	case "green", "g":
		return ChannelGreen, nil
	case "blue", "b":
		return ChannelBlue, nil
	case "alpha", "a":
		return ChannelAlpha, nil
	case "packed_rg", "rg":
		return ChannelPackedRG, nil
	default:
		return 0, fmt.Errorf("unknown channel %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(text []byte) error {
	parsed, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type opaquer interface {
	Opaque() bool
}

// Load converts an image into a field using the given channel.
// It fails with ErrData when the image has no usable height channel.
func Load(img image.Image, ch Channel) (*HeightField, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrData)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrData)
	}

	switch ch {
	case ChannelAlpha:
		if o, ok := img.(opaquer); ok && o.Opaque() {
			return nil, fmt.Errorf("%w: image has no alpha channel", ErrData)
		}
	case ChannelLuminance, ChannelRed, ChannelGreen, ChannelBlue, ChannelPackedRG:
	default:
		return nil, fmt.Errorf("%w: unsupported channel %s", ErrData, ch)
	}

	f := New(b.Dx(), b.Dy(), 1)

	// Fast path for 16-bit grayscale, the common heightmap format
	if g16, ok := img.(*image.Gray16); ok && ch == ChannelLuminance {
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Data[y*f.Width+x] = float32(g16.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 0xffff
			}
		}
		return f, nil
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Data[y*f.Width+x] = channelValue(img.At(b.Min.X+x, b.Min.Y+y), ch)
		}
	}
	return f, nil
}

func channelValue(c color.Color, ch Channel) float32 {
	switch ch {
	case ChannelRed:
		r, _, _, _ := c.RGBA()
		return float32(r) / 0xffff
	case ChannelGreen:
		_, g, _, _ := c.RGBA()
		return float32(g) / 0xffff
	case ChannelBlue:
		_, _, b, _ := c.RGBA()
		return float32(b) / 0xffff
	case ChannelAlpha:
		_, _, _, a := c.RGBA()
		return float32(a) / 0xffff
	case ChannelPackedRG:
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		return float32(uint16(n.R)<<8|uint16(n.G)) / 0xffff
	default:
		g := color.Gray16Model.Convert(c).(color.Gray16)
		return float32(g.Y) / 0xffff
	}
}

// Decode reads an encoded image (PNG, JPEG, GIF, TIFF, BMP) into a field.
func Decode(r io.Reader, ch Channel) (*HeightField, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %v", ErrData, err)
	}
	f, err := Load(img, ch)
	if err != nil {
		return nil, fmt.Errorf("loading %s image: %w", format, err)
	}
	return f, nil
}

// Image converts f to a 16-bit grayscale image.
func (f *HeightField) Image() *image.Gray16 {
	img := image.NewGray16(f.Bounds())
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := clamp01(float64(f.Data[y*f.Width+x]))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v*0xffff + 0.5)})
		}
	}
	return img
}

// Encode writes f as a 16-bit grayscale PNG.
func Encode(w io.Writer, f *HeightField) error {
	if f.Empty() {
		return fmt.Errorf("%w: empty field", ErrData)
	}
	return png.Encode(w, f.Image())
}
