package display

import (
	"fmt"
	"os"
)

// HeadlessBackend never opens a display server; it is the backend
// used by -nogui runs and by test tooling that drives the emulator
// toward a known frame.
type HeadlessBackend struct {
	initialized bool
	config      Config
}

// HeadlessWindow discards SwapBuffers/PollEvents and writes frames 31,
// 61 and 120 to PPM files in the working directory for debugging.
type HeadlessWindow struct {
	title      string
	width      int
	height     int
	running    bool
	frameCount int
}

func NewHeadlessBackend() Backend {
	return &HeadlessBackend{}
}

func (b *HeadlessBackend) Initialize(config Config) error {
	if b.initialized {
		return fmt.Errorf("headless backend already initialized")
	}
	b.config = config
	b.initialized = true
	return nil
}

func (b *HeadlessBackend) CreateWindow(title string, width, height int) (Window, error) {
	if !b.initialized {
		return nil, fmt.Errorf("backend not initialized")
	}
	return &HeadlessWindow{title: title, width: width, height: height, running: true}, nil
}

func (b *HeadlessBackend) Cleanup() error {
	b.initialized = false
	return nil
}

func (b *HeadlessBackend) IsHeadless() bool { return true }
func (b *HeadlessBackend) GetName() string  { return "Headless" }

func (w *HeadlessWindow) SetTitle(title string) { w.title = title }

func (w *HeadlessWindow) GetSize() (width, height int) { return w.width, w.height }

func (w *HeadlessWindow) ShouldClose() bool { return !w.running }

func (w *HeadlessWindow) SwapBuffers() {}

func (w *HeadlessWindow) PollEvents() []InputEvent { return nil }

// RenderFrame counts the frame and, at a few fixed checkpoints, dumps
// it as a PPM so a headless run can be inspected after the fact.
func (w *HeadlessWindow) RenderFrame(frameBuffer [256 * 240]uint32) error {
	w.frameCount++
	if w.frameCount == 31 || w.frameCount == 61 || w.frameCount == 120 {
		return w.saveFrameAsPPM(frameBuffer, fmt.Sprintf("frame_%03d.ppm", w.frameCount))
	}
	return nil
}

func (w *HeadlessWindow) saveFrameAsPPM(frameBuffer [256 * 240]uint32, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %v", filename, err)
	}
	defer file.Close()

	fmt.Fprintf(file, "P3\n256 240\n255\n")
	for y := 0; y < 240; y++ {
		for x := 0; x < 256; x++ {
			pixel := frameBuffer[y*256+x]
			r := (pixel >> 16) & 0xFF
			g := (pixel >> 8) & 0xFF
			b := pixel & 0xFF
			fmt.Fprintf(file, "%d %d %d ", r, g, b)
		}
		fmt.Fprintf(file, "\n")
	}
	return nil
}

func (w *HeadlessWindow) Cleanup() error {
	w.running = false
	return nil
}
