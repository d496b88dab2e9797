package builtin

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
)

// basePlaceholderSize is the size the gradient is painted at before being
// rescaled to the render resolution.
const basePlaceholderSize = 256

// scenePalette gives adjacent scenes visibly different placeholder colors.
var scenePalette = []color.NRGBA{
	{R: 0x2d, G: 0x3e, B: 0x50, A: 0xff},
	{R: 0x16, G: 0xa0, B: 0x85, A: 0xff},
	{R: 0x8e, G: 0x44, B: 0xad, A: 0xff},
	{R: 0xd3, G: 0x54, B: 0x00, A: 0xff},
	{R: 0x2c, G: 0x82, B: 0xc9, A: 0xff},
}

// PlaceholderImage generates flat gradient frames locally. It is both a
// registered Free provider and the substitute the pipeline uses when no
// image provider is usable for the job's policy.
type PlaceholderImage struct{}

// NewPlaceholderImage returns the placeholder visual provider.
func NewPlaceholderImage() *PlaceholderImage { return &PlaceholderImage{} }

// Manifest implements providers.Provider.
func (p *PlaceholderImage) Manifest() providers.Manifest {
	return providers.Manifest{
		Name:                 "Placeholder",
		Tier:                 providers.TierFree,
		OnlineRequired:       false,
		SupportsCancellation: true,
	}
}

// GenerateAsset implements providers.ImageProvider.
func (p *PlaceholderImage) GenerateAsset(ctx context.Context, scene models.Scene, render models.RenderSpec, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf("scene-%03d.png", scene.Index))
	if err := WritePlaceholderPNG(path, scene.Index, render.Width, render.Height); err != nil {
		return "", fmt.Errorf("writing placeholder for scene %d: %w", scene.Index, err)
	}
	return path, nil
}

// WritePlaceholderPNG paints a vertical gradient keyed on the scene index
// and scales it to the target resolution.
func WritePlaceholderPNG(path string, sceneIndex, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid placeholder dimensions %dx%d", width, height)
	}

	base := scenePalette[sceneIndex%len(scenePalette)]
	src := image.NewNRGBA(image.Rect(0, 0, basePlaceholderSize, basePlaceholderSize))
	for y := 0; y < basePlaceholderSize; y++ {
		shade := uint8(255 * y / basePlaceholderSize)
		row := color.NRGBA{
			R: blend(base.R, shade),
			G: blend(base.G, shade),
			B: blend(base.B, shade),
			A: 0xff,
		}
		for x := 0; x < basePlaceholderSize; x++ {
			src.SetNRGBA(x, y, row)
		}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		return err
	}
	return f.Sync()
}

func blend(c, shade uint8) uint8 {
	return uint8((uint16(c)*3 + uint16(shade)) / 4)
}
