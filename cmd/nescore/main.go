// Command nescore runs the NES emulator from the command line.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwasson/nescore/internal/app"
	"github.com/mwasson/nescore/internal/version"
)

func main() {
	var (
		romFile    = flag.String("rom", "", "path to an iNES ROM file")
		configFile = flag.String("config", "", "path to a configuration file")
		debug      = flag.Bool("debug", false, "enable debug logging")
		nogui      = flag.Bool("nogui", false, "run headless, without a display window")
		frames     = flag.Int("frames", 120, "frames to run in headless mode")
		help       = flag.Bool("help", false, "show usage")
		showVer    = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *help {
		printUsage()
		return
	}
	if *showVer {
		version.PrintBuildInfo()
		return
	}

	setupGracefulShutdown()

	application, err := app.New(*configFile, *nogui)
	if err != nil {
		log.Fatalf("nescore: %v", err)
	}
	defer func() {
		if err := application.Cleanup(); err != nil {
			log.Printf("nescore: cleanup: %v", err)
		}
	}()

	if *debug {
		application.SetDebugLogging(true)
	}

	if *romFile != "" {
		if err := application.LoadROM(*romFile); err != nil {
			log.Fatalf("nescore: %v", err)
		}
	}

	if *nogui {
		if *romFile == "" {
			log.Fatal("nescore: -rom is required with -nogui")
		}
		application.RunFrames(*frames)
		fmt.Printf("nescore: ran %d frames headless\n", *frames)
		return
	}

	if err := application.Run(); err != nil {
		log.Fatalf("nescore: %v", err)
	}
}

func setupGracefulShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		os.Exit(0)
	}()
}

func printUsage() {
	fmt.Println("nescore - a Go NES emulator")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  nescore -version                    print build information")
	fmt.Println("  nescore -rom <file> [options]        start the GUI with a ROM loaded")
	fmt.Println("  nescore -nogui -rom <file>            run headless for a fixed number of frames")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
}
