//go:build cgo

package sim

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow shows p in a desktop window scaled by scale, refreshing at
// 30 frames per second. It blocks until the window is closed or ctx ends.
func RunWindow(ctx context.Context, p *Panel, scale int) error {
	if scale < 1 {
		scale = 1
	}
	ebiten.SetWindowTitle("tftpanel (simulated ST7789)")
	ebiten.SetWindowSize(p.w*scale, p.h*scale)
	ebiten.SetTPS(30)

	err := ebiten.RunGame(&viewer{ctx: ctx, p: p})
	if err == ebiten.Termination {
		return nil
	}
	return err
}

type viewer struct {
	ctx context.Context
	p   *Panel
	img *ebiten.Image
}

func (v *viewer) Update() error {
	if v.ctx.Err() != nil {
		return ebiten.Termination
	}
	return nil
}

func (v *viewer) Draw(screen *ebiten.Image) {
	snap := v.p.Snapshot()
	if v.img == nil {
		v.img = ebiten.NewImage(v.p.w, v.p.h)
	}
	v.img.WritePixels(snap.Pix)
	screen.DrawImage(v.img, nil)
}

func (v *viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return v.p.w, v.p.h
}
