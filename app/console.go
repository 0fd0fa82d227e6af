package app

import (
	"sync"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"tickos/hal"
)

// Console mirrors user output onto the framebuffer as a scrolling terminal.
type Console struct {
	mu sync.Mutex
	fb hal.Framebuffer
	d  *fbDisplay
	t  *tinyterm.Terminal
}

// NewConsole returns nil when the display has no usable framebuffer.
func NewConsole(disp hal.Display) *Console {
	if disp == nil {
		return nil
	}
	fb := disp.Framebuffer()
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	c := &Console{fb: fb, d: newFBDisplay(fb)}
	c.Reset()
	return c
}

// Reset clears the screen and homes the cursor.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = tinyterm.NewTerminal(c.d)
	c.t.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        6,
		UseSoftwareScroll: true,
	})
	c.fb.ClearRGB(0, 0, 0)
	_ = c.fb.Present()
}

// Write renders p and presents the frame.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.t.Write(p)
	c.t.Display()
	return n, err
}
