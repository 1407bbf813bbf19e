// Package app wires the scheduler, cartridge loader and display backend
// into a runnable emulator.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mwasson/nescore/internal/cartridge"
	"github.com/mwasson/nescore/internal/display"
	"github.com/mwasson/nescore/internal/input"
	"github.com/mwasson/nescore/internal/logging"
	"github.com/mwasson/nescore/internal/scheduler"
)

// Application owns the emulation core and the display backend, and
// drives the frame pump that connects them.
type Application struct {
	config *Config
	log    *logging.Logger

	displayBackend display.Backend
	window         display.Window
	videoProcessor *display.VideoProcessor

	scheduler *scheduler.Scheduler

	romPath   string
	cartridge *cartridge.Cartridge

	running  bool
	paused   bool
	headless bool
}

// ApplicationError reports which component and operation failed during
// setup.
type ApplicationError struct {
	Component string
	Operation string
	Err       error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("app: %s: %s: %v", e.Component, e.Operation, e.Err)
}

func (e *ApplicationError) Unwrap() error { return e.Err }

// New constructs an Application in either windowed or headless mode. No
// cartridge is loaded yet; call LoadROM before Run.
func New(configPath string, headless bool) (*Application, error) {
	cfg := NewConfig()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "app: could not load config from %s, using defaults: %v\n", configPath, err)
		}
	}

	level := logging.LevelInfo
	if cfg.Debug.EnableLogging {
		level = logging.LevelDebug
	}

	app := &Application{
		config:   cfg,
		log:      logging.New("APP", level),
		headless: headless,
	}

	if err := app.initBackend(); err != nil {
		return nil, &ApplicationError{Component: "display", Operation: "initialize backend", Err: err}
	}

	return app, nil
}

// initBackend selects and initializes the display backend, falling
// back to the headless backend if the windowed backend cannot start
// (e.g. no display server available).
func (app *Application) initBackend() error {
	backendType := display.BackendEbitengine
	if app.headless {
		backendType = display.BackendHeadless
	} else if app.config.Video.Backend == "headless" {
		backendType = display.BackendHeadless
	}

	backend, err := display.CreateBackend(backendType)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	cfg := display.Config{
		WindowTitle:  "nescore",
		WindowWidth:  app.config.Window.Width,
		WindowHeight: app.config.Window.Height,
		Fullscreen:   app.config.Window.Fullscreen,
		VSync:        app.config.Video.VSync,
		Filter:       app.config.Video.Filter,
		AspectRatio:  app.config.Video.AspectRatio,
		Headless:     app.headless,
		Debug:        app.config.Debug.EnableLogging,
	}

	if err := backend.Initialize(cfg); err != nil {
		if backendType != display.BackendHeadless {
			app.log.Warnf("display backend %q failed (%v), falling back to headless", backendType, err)
			backend, err = display.CreateBackend(display.BackendHeadless)
			if err != nil {
				return fmt.Errorf("create fallback headless backend: %w", err)
			}
			cfg.Headless = true
			app.headless = true
			if err := backend.Initialize(cfg); err != nil {
				return fmt.Errorf("initialize fallback headless backend: %w", err)
			}
		} else {
			return fmt.Errorf("initialize headless backend: %w", err)
		}
	}

	app.displayBackend = backend

	if !backend.IsHeadless() {
		window, err := backend.CreateWindow(cfg.WindowTitle, cfg.WindowWidth, cfg.WindowHeight)
		if err != nil {
			return fmt.Errorf("create window: %w", err)
		}
		app.window = window
	}

	app.videoProcessor = display.NewVideoProcessor(
		app.config.Video.Brightness,
		app.config.Video.Contrast,
		app.config.Video.Saturation,
	)

	return nil
}

// LoadROM reads a ROM file from disk, parses it and wires a fresh
// Scheduler around it. Any previously loaded cartridge is discarded.
func (app *Application) LoadROM(romPath string) error {
	data, err := os.ReadFile(romPath)
	if err != nil {
		return &ApplicationError{Component: "cartridge", Operation: "read ROM file", Err: err}
	}

	cart, err := cartridge.Load(data)
	if err != nil {
		return &ApplicationError{Component: "cartridge", Operation: "parse ROM", Err: err}
	}

	app.cartridge = cart
	app.romPath = romPath
	app.scheduler = scheduler.New(cart)

	if app.window != nil {
		app.window.SetTitle(fmt.Sprintf("nescore - %s", filepath.Base(romPath)))
	}

	app.log.Infof("loaded %s (mapper %d, %dKiB PRG, %dKiB CHR)",
		filepath.Base(romPath), cart.MapperID, cart.PRGSize/1024, cart.CHRSize/1024)

	return nil
}

// Run drives the application loop until the window is closed or Stop
// is called. For the Ebitengine backend this hands control to ebiten's
// own game loop via an update callback; other backends use a plain
// fixed-rate loop.
func (app *Application) Run() error {
	if app.cartridge == nil {
		return errors.New("app: no ROM loaded")
	}

	app.running = true

	if app.window != nil {
		if ebitenWindow, ok := display.AsEbitengineWindow(app.window); ok {
			ebitenWindow.SetEmulatorUpdateFunc(func() error {
				app.processInput()
				app.update()
				return app.render()
			})
			return ebitenWindow.Run()
		}
	}

	for app.running {
		app.processInput()
		app.update()
		if err := app.render(); err != nil {
			app.log.Errorf("render: %v", err)
		}
		if app.window != nil && app.window.ShouldClose() {
			app.Stop()
		}
		time.Sleep(16 * time.Millisecond)
	}

	return nil
}

// update advances emulation by exactly one frame, unless paused.
func (app *Application) update() {
	if app.paused || app.scheduler == nil {
		return
	}
	app.scheduler.RunFrame()
}

// RunFrames advances the emulator by exactly n frames without any
// display backend involved, for headless batch use (e.g. test tooling
// driving the emulator toward a known state).
func (app *Application) RunFrames(n int) {
	if app.scheduler == nil {
		return
	}
	for i := 0; i < n; i++ {
		app.scheduler.RunFrame()
	}
}

// render copies the scheduler's published frame through the video
// processor and out to the window.
func (app *Application) render() error {
	if app.window == nil || app.scheduler == nil {
		return nil
	}

	raw := app.scheduler.FrameBuffer()
	processed := app.videoProcessor.ProcessFrame(raw[:])

	var out [256 * 240]uint32
	copy(out[:], processed)

	if err := app.window.RenderFrame(out); err != nil {
		return fmt.Errorf("render frame: %w", err)
	}
	app.window.SwapBuffers()
	return nil
}

// processInput polls the window for events and forwards button state
// to both controller ports.
func (app *Application) processInput() {
	if app.window == nil || app.scheduler == nil {
		return
	}

	var p1, p2 [8]bool
	changed := false

	for _, event := range app.window.PollEvents() {
		switch event.Type {
		case display.InputEventTypeQuit:
			app.Stop()
		case display.InputEventTypeButton:
			if is2PButton(event.Button) {
				if idx := get2PButtonIndex(event.Button); idx >= 0 {
					p2[idx] = event.Pressed
					changed = true
				}
			} else if idx := buttonIndex(displayButtonToInputButton(event.Button)); idx >= 0 {
				p1[idx] = event.Pressed
				changed = true
			}
		}
	}

	if changed {
		app.scheduler.SetControllerButtons(1, p1)
		app.scheduler.SetControllerButtons(2, p2)
	}
}

// buttonIndex maps an input.Button bit to its SetControllerButtons
// array slot (A, B, Select, Start, Up, Down, Left, Right).
func buttonIndex(b input.Button) int {
	switch b {
	case input.ButtonA:
		return 0
	case input.ButtonB:
		return 1
	case input.ButtonSelect:
		return 2
	case input.ButtonStart:
		return 3
	case input.ButtonUp:
		return 4
	case input.ButtonDown:
		return 5
	case input.ButtonLeft:
		return 6
	case input.ButtonRight:
		return 7
	default:
		return -1
	}
}

// displayButtonToInputButton converts a backend-reported button into
// the controller-port button it drives for player 1.
func displayButtonToInputButton(b display.Button) input.Button {
	switch b {
	case display.ButtonA:
		return input.ButtonA
	case display.ButtonB:
		return input.ButtonB
	case display.ButtonSelect:
		return input.ButtonSelect
	case display.ButtonStart:
		return input.ButtonStart
	case display.ButtonUp:
		return input.ButtonUp
	case display.ButtonDown:
		return input.ButtonDown
	case display.ButtonLeft:
		return input.ButtonLeft
	case display.ButtonRight:
		return input.ButtonRight
	default:
		return input.ButtonA
	}
}

func is2PButton(b display.Button) bool {
	switch b {
	case display.Button2A, display.Button2B, display.Button2Select, display.Button2Start,
		display.Button2Up, display.Button2Down, display.Button2Left, display.Button2Right:
		return true
	default:
		return false
	}
}

func get2PButtonIndex(b display.Button) int {
	switch b {
	case display.Button2A:
		return 0
	case display.Button2B:
		return 1
	case display.Button2Select:
		return 2
	case display.Button2Start:
		return 3
	case display.Button2Up:
		return 4
	case display.Button2Down:
		return 5
	case display.Button2Left:
		return 6
	case display.Button2Right:
		return 7
	default:
		return -1
	}
}

// Stop requests the main loop to exit after the current iteration.
func (app *Application) Stop() {
	app.running = false
}

// SetDebugLogging toggles debug-level logging at runtime, overriding
// whatever the loaded config selected.
func (app *Application) SetDebugLogging(on bool) {
	app.config.Debug.EnableLogging = on
	if on {
		app.log.SetLevel(logging.LevelDebug)
	} else {
		app.log.SetLevel(logging.LevelInfo)
	}
}

// Pause suspends emulation updates; the display backend keeps polling
// input and re-rendering the last published frame.
func (app *Application) Pause()  { app.paused = true }
func (app *Application) Resume() { app.paused = false }

// SaveData returns a snapshot of the cartridge's persistent RAM, or
// nil if no ROM is loaded.
func (app *Application) SaveData() []byte {
	if app.scheduler == nil {
		return nil
	}
	return app.scheduler.SnapshotSaveData()
}

// Cleanup releases the display backend and window.
func (app *Application) Cleanup() error {
	var lastErr error
	if app.window != nil {
		if err := app.window.Cleanup(); err != nil {
			lastErr = err
			app.log.Errorf("window cleanup: %v", err)
		}
	}
	if app.displayBackend != nil {
		if err := app.displayBackend.Cleanup(); err != nil {
			lastErr = err
			app.log.Errorf("backend cleanup: %v", err)
		}
	}
	return lastErr
}

// IsRunning reports whether the main loop is still active.
func (app *Application) IsRunning() bool { return app.running }

// Config returns the application's configuration.
func (app *Application) Config() *Config { return app.config }

// ROMPath returns the path most recently passed to LoadROM.
func (app *Application) ROMPath() string { return app.romPath }
