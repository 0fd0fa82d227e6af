//go:build !tinygo && cgo

package hal

import (
	"context"
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"tickos/internal/buildinfo"
)

// RunWindow boots the machine and shows its console framebuffer in a
// desktop window. It blocks until the window closes.
func RunWindow(ctx context.Context, boot func(*Host), cfg HeadlessConfig) error {
	h := NewHost(cfg.Host)

	done := make(chan error, 1)
	go func() {
		done <- runHost(ctx, h, boot, cfg.Timeout)
	}()

	g := &hostGame{h: h, done: done}
	ebiten.SetWindowTitle("tickos (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	if err := ebiten.RunGame(g); err != nil {
		return err
	}
	return g.result
}

type hostGame struct {
	h       *Host
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	frame   uint64

	done     chan error
	finished bool
	result   error
}

// Update keeps the window open after power-off so the final console
// contents stay visible.
func (g *hostGame) Update() error {
	if g.finished {
		return nil
	}
	select {
	case err := <-g.done:
		g.finished = true
		g.result = err
		ebiten.SetWindowTitle("tickos (" + buildinfo.Short() + ") - powered off")
	default:
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.front))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	frame := fb.snapshotRGB565(g.scratch)
	if frame == g.frame && frame != 0 {
		screen.DrawImage(g.fbImg, nil)
		return
	}
	g.frame = frame

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
