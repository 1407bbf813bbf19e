// Package ppu implements the 2C02-style picture processing unit:
// scanline/dot timing, the bit-packed v/t scroll registers, background
// and sprite rendering, and the CPU-visible register file at
// $2000-$2007.
package ppu

import (
	"sync"

	"github.com/mwasson/nescore/internal/cartridge"
	"github.com/mwasson/nescore/internal/memory"
)

const (
	screenWidth   = 256
	screenHeight  = 240
	dotsPerLine   = 341
	linesPerFrame = 262
)

// PPUCTRL/PPUMASK bit meanings relevant beyond simple flag checks.
const (
	ctrlNMIEnable      = 1 << 7
	ctrlSpriteHeight   = 1 << 5
	ctrlBGPatternTable = 1 << 4
	ctrlSpritePatTable = 1 << 3
	ctrlVRAMIncrement  = 1 << 2

	maskShowSprites     = 1 << 4
	maskShowBackground  = 1 << 3
	maskShowSpritesLeft = 1 << 2
	maskShowBGLeft      = 1 << 1
)

// PPU is the picture processing unit. It owns nametable and palette
// RAM directly; pattern-table data and CHR-space mirroring come from
// the cartridge mapper.
type PPU struct {
	mapper cartridge.Mapper

	// CPU-visible register latches.
	ctrl byte
	mask byte

	statusVBlank   bool
	statusSprite0  bool
	statusOverflow bool

	oamAddr byte
	oam     [256]byte

	// Internal scroll state: v/t pack fine-Y (bits 12-14), nametable
	// select (bits 10-11), coarse-Y (bits 5-9) and coarse-X (bits 0-4);
	// x is 3-bit fine-X, w is the shared
	// write-toggle for PPUSCROLL/PPUADDR.
	v, t uint16
	x    byte
	w    bool

	dataBuffer byte

	nametables [0x1000]byte // 4 logical 1KiB banks, folded per mirroring
	palette    [32]byte

	scanline   int
	dot        int
	oddFrame   bool
	frameCount uint64

	frameBuffer [screenWidth * screenHeight]uint32

	publishMu      sync.Mutex
	publishedFrame [screenWidth * screenHeight]uint32

	// per-scanline background scratch, reused every line
	bgColorIndex [screenWidth]byte
	bgPaletteHi  [screenWidth]byte

	nmiCallback           func()
	frameCompleteCallback func()
}

// New constructs a PPU wired to mapper for CHR/mirroring access.
func New(mapper cartridge.Mapper) *PPU {
	return &PPU{mapper: mapper}
}

// SetMapper rebinds the cartridge (used when a new ROM is loaded).
func (p *PPU) SetMapper(mapper cartridge.Mapper) {
	p.mapper = mapper
}

// SetNMICallback sets the function invoked when VBlank begins with
// NMI generation enabled. The scheduler wires this to the CPU's
// RequestNMI, so the PPU only ever latches, never directly executes.
func (p *PPU) SetNMICallback(callback func()) {
	p.nmiCallback = callback
}

// SetFrameCompleteCallback sets the function invoked once per frame,
// immediately after the frame buffer is published.
func (p *PPU) SetFrameCompleteCallback(callback func()) {
	p.frameCompleteCallback = callback
}

// Reset returns the PPU to power-on state.
func (p *PPU) Reset() {
	*p = PPU{mapper: p.mapper, nmiCallback: p.nmiCallback, frameCompleteCallback: p.frameCompleteCallback}
}

// GetFrameCount returns the number of frames completed.
func (p *PPU) GetFrameCount() uint64 { return p.frameCount }

// GetFrameBuffer returns the most recently published frame, safe to
// call from a host rendering thread concurrently with Step.
func (p *PPU) GetFrameBuffer() [screenWidth * screenHeight]uint32 {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	return p.publishedFrame
}

// OAMAddr returns the current OAMADDR latch.
func (p *PPU) OAMAddr() byte { return p.oamAddr }

// DMAWrite implements memory.OAMTarget: OAM DMA writes 256 bytes
// starting at the current OAMADDR and wrapping within the page.
func (p *PPU) DMAWrite(offset byte, value byte) {
	p.oam[byte(p.oamAddr+offset)] = value
}

// OnRead implements memory.MemoryListener for $2000-$2007 (mirrored
// every 8 bytes through $3FFF).
func (p *PPU) OnRead(bus *memory.Bus, addr uint16) byte {
	switch addr & 7 {
	case 2: // PPUSTATUS
		result := byte(0)
		if p.statusVBlank {
			result |= 0x80
		}
		if p.statusSprite0 {
			result |= 0x40
		}
		if p.statusOverflow {
			result |= 0x20
		}
		p.statusVBlank = false
		p.w = false
		return result
	case 4: // OAMDATA
		return p.oam[p.oamAddr]
	case 7: // PPUDATA
		return p.readData()
	default:
		return 0
	}
}

// OnWrite implements memory.MemoryListener for $2000-$2007.
func (p *PPU) OnWrite(bus *memory.Bus, addr uint16, value byte) {
	switch addr & 7 {
	case 0: // PPUCTRL
		wasNMIEnabled := p.ctrl&ctrlNMIEnable != 0
		p.ctrl = value
		p.t = (p.t & 0xF3FF) | (uint16(value&0x03) << 10)
		if !wasNMIEnabled && p.ctrl&ctrlNMIEnable != 0 && p.statusVBlank {
			p.signalNMI()
		}
	case 1: // PPUMASK
		p.mask = value
	case 3: // OAMADDR
		p.oamAddr = value
	case 4: // OAMDATA
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 5: // PPUSCROLL
		if !p.w {
			p.t = (p.t & 0xFFE0) | uint16(value>>3)
			p.x = value & 0x07
		} else {
			p.t = (p.t & 0x8FFF) | (uint16(value&0x07) << 12)
			p.t = (p.t & 0xFC1F) | (uint16(value&0xF8) << 2)
		}
		p.w = !p.w
	case 6: // PPUADDR
		if !p.w {
			p.t = (p.t & 0x00FF) | (uint16(value&0x3F) << 8)
		} else {
			p.t = (p.t & 0xFF00) | uint16(value)
			p.v = p.t
		}
		p.w = !p.w
	case 7: // PPUDATA
		p.writeData(value)
	}
}

func (p *PPU) vramIncrement() uint16 {
	if p.ctrl&ctrlVRAMIncrement != 0 {
		return 32
	}
	return 1
}

func (p *PPU) readData() byte {
	addr := p.v & 0x3FFF
	var result byte
	if addr >= 0x3F00 {
		result = p.readPalette(addr)
		p.dataBuffer = p.readVRAM(addr - 0x1000)
	} else {
		result = p.dataBuffer
		p.dataBuffer = p.readVRAM(addr)
	}
	p.v += p.vramIncrement()
	return result
}

func (p *PPU) writeData(value byte) {
	p.writeVRAM(p.v&0x3FFF, value)
	p.v += p.vramIncrement()
}

func (p *PPU) readVRAM(addr uint16) byte {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		return p.mapper.ReadCHR(addr)
	case addr < 0x3F00:
		return p.nametables[p.mirrorAddr(addr)]
	default:
		return p.readPalette(addr)
	}
}

func (p *PPU) writeVRAM(addr uint16, value byte) {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		p.mapper.WriteCHR(addr, value)
	case addr < 0x3F00:
		p.nametables[p.mirrorAddr(addr)] = value
	default:
		p.writePalette(addr, value)
	}
}

// mirrorAddr folds a $2000-$3EFF nametable address into one of four
// 1KiB banks according to the cartridge's mirroring mode. Each mode
// maps a logical table to a canonical table that maps to itself, so
// folding an already-folded address is a no-op.
func (p *PPU) mirrorAddr(addr uint16) uint16 {
	logical := (addr - 0x2000) & 0x0FFF
	table := logical / 0x400
	offset := logical % 0x400

	var bank uint16
	switch p.mapper.Mirroring() {
	case cartridge.Horizontal:
		bank = table &^ 1
	case cartridge.Vertical:
		bank = table & 1
	case cartridge.SingleA:
		bank = 0
	case cartridge.SingleB:
		bank = 1
	case cartridge.FourScreen:
		bank = table
	}
	return bank*0x400 + offset
}

func paletteIndex(addr uint16) uint16 {
	idx := addr & 0x1F
	if idx == 0x10 || idx == 0x14 || idx == 0x18 || idx == 0x1C {
		idx &= 0x0F
	}
	return idx
}

func (p *PPU) readPalette(addr uint16) byte  { return p.palette[paletteIndex(addr)] }
func (p *PPU) writePalette(addr uint16, v byte) { p.palette[paletteIndex(addr)] = v & 0x3F }

func (p *PPU) renderingEnabled() bool {
	return p.mask&(maskShowBackground|maskShowSprites) != 0
}

func (p *PPU) bgPatternTableAddr() uint16 {
	if p.ctrl&ctrlBGPatternTable != 0 {
		return 0x1000
	}
	return 0
}

func (p *PPU) spritePatternTableAddr() uint16 {
	if p.ctrl&ctrlSpritePatTable != 0 {
		return 0x1000
	}
	return 0
}

func (p *PPU) spriteHeight() int {
	if p.ctrl&ctrlSpriteHeight != 0 {
		return 16
	}
	return 8
}

func (p *PPU) incrementX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

func (p *PPU) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
	} else {
		p.v &^= 0x7000
		y := (p.v & 0x03E0) >> 5
		switch y {
		case 29:
			y = 0
			p.v ^= 0x0800
		case 31:
			y = 0
		default:
			y++
		}
		p.v = (p.v &^ 0x03E0) | (y << 5)
	}
}

func (p *PPU) copyX() {
	p.v = (p.v & 0xFBE0) | (p.t & 0x041F)
}

func (p *PPU) copyY() {
	p.v = (p.v & 0x841F) | (p.t & 0x7BE0)
}

func (p *PPU) signalNMI() {
	if p.nmiCallback != nil {
		p.nmiCallback()
	}
}

// Step advances the PPU by one dot (one PPU cycle).
func (p *PPU) Step() {
	switch {
	case p.scanline >= 0 && p.scanline <= 239:
		p.visibleScanlineDot()
	case p.scanline == 241 && p.dot == 1:
		p.statusVBlank = true
		p.publishFrame()
		if p.ctrl&ctrlNMIEnable != 0 {
			p.signalNMI()
		}
	case p.scanline == 261:
		p.preRenderDot()
	}

	p.dot++

	// NTSC odd-frame skip: the pre-render line's last dot is dropped
	// when rendering is enabled, shortening that line by one dot.
	lineLength := dotsPerLine
	if p.scanline == 261 && p.oddFrame && p.renderingEnabled() {
		lineLength--
	}

	if p.dot >= lineLength {
		p.dot = 0
		p.scanline++
		if p.scanline >= linesPerFrame {
			p.scanline = 0
			p.oddFrame = !p.oddFrame
			p.frameCount++
		}
	}
}

func (p *PPU) visibleScanlineDot() {
	switch p.dot {
	case 1:
		if p.renderingEnabled() {
			p.renderScanline(p.scanline)
		} else {
			p.clearScanline(p.scanline)
		}
	case 256:
		if p.renderingEnabled() {
			p.incrementY()
		}
	case 257:
		if p.renderingEnabled() {
			p.copyX()
		}
	}
}

func (p *PPU) preRenderDot() {
	switch p.dot {
	case 1:
		p.statusVBlank = false
		p.statusSprite0 = false
		p.statusOverflow = false
	case 257:
		if p.renderingEnabled() {
			p.copyX()
		}
	case 304:
		if p.renderingEnabled() {
			p.copyY()
		}
	}
}

func (p *PPU) publishFrame() {
	p.publishMu.Lock()
	p.publishedFrame = p.frameBuffer
	p.publishMu.Unlock()
	if p.frameCompleteCallback != nil {
		p.frameCompleteCallback()
	}
}

func (p *PPU) clearScanline(y int) {
	bg := p.backdropColor()
	for x := 0; x < screenWidth; x++ {
		p.frameBuffer[y*screenWidth+x] = bg
	}
}

func (p *PPU) backdropColor() uint32 {
	return nesColorPalette[p.palette[0]&0x3F]
}

// renderScanline renders one visible scanline: background tiles
// fetched by walking v/incrementX across the nametable, then sprites
// composited on top per OAM evaluation.
func (p *PPU) renderScanline(y int) {
	for i := range p.bgColorIndex {
		p.bgColorIndex[i] = 0
		p.bgPaletteHi[i] = 0
	}

	if p.mask&maskShowBackground != 0 {
		p.renderBackground(y)
	}

	for x := 0; x < screenWidth; x++ {
		colorIdx := p.bgColorIndex[x]
		var color uint32
		if colorIdx == 0 {
			color = p.backdropColor()
		} else {
			color = nesColorPalette[p.readPalette(0x3F00+uint16(p.bgPaletteHi[x])*4+uint16(colorIdx))&0x3F]
		}
		p.frameBuffer[y*screenWidth+x] = color
	}

	if p.mask&maskShowSprites != 0 {
		p.renderSprites(y)
	}
}

func (p *PPU) renderBackground(y int) {
	savedV := p.v
	fineX := int(p.x)
	bgTable := p.bgPatternTableAddr()

	// 33 tiles covers the 256px line plus the partial tile introduced
	// by fine-X scroll.
	for tile := 0; tile < 33; tile++ {
		nameByte := p.readVRAM(0x2000 | (p.v & 0x0FFF))
		attrByte := p.readVRAM(0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07))
		coarseX := p.v & 0x001F
		coarseY := (p.v >> 5) & 0x001F
		quadrantShift := uint((coarseY&2)<<1 | (coarseX & 2))
		paletteHi := (attrByte >> quadrantShift) & 0x03
		fineY := (p.v >> 12) & 0x07

		tileAddr := bgTable + uint16(nameByte)*16 + fineY
		lo := p.readVRAM(tileAddr)
		hi := p.readVRAM(tileAddr + 8)

		for bit := 0; bit < 8; bit++ {
			screenX := tile*8 - fineX + bit
			if screenX < 0 || screenX >= screenWidth {
				continue
			}
			hiBit := (hi >> uint(7-bit)) & 1
			loBit := (lo >> uint(7-bit)) & 1
			colorIdx := hiBit<<1 | loBit
			if screenX < 8 && p.mask&maskShowBGLeft == 0 {
				continue
			}
			p.bgColorIndex[screenX] = colorIdx
			p.bgPaletteHi[screenX] = paletteHi
		}

		p.incrementX()
	}

	p.v = savedV
}

type spriteSlot struct {
	x, colorIdx, paletteHi byte
	behindBG               bool
	isSprite0              bool
}

func (p *PPU) renderSprites(y int) {
	height := p.spriteHeight()
	spriteTable := p.spritePatternTableAddr()

	var slots []spriteSlot
	spritesOnLine := 0
	for i := 0; i < 64; i++ {
		sy := int(p.oam[i*4]) + 1
		if y < sy || y >= sy+height {
			continue
		}
		if spritesOnLine == 8 {
			p.statusOverflow = true
			break
		}
		spritesOnLine++

		tile := p.oam[i*4+1]
		attr := p.oam[i*4+2]
		sx := p.oam[i*4+3]
		flipH := attr&0x40 != 0
		flipV := attr&0x80 != 0
		behindBG := attr&0x20 != 0
		paletteHi := (attr & 0x03) + 4

		row := y - sy
		if flipV {
			row = height - 1 - row
		}

		var tileAddr uint16
		if height == 16 {
			table := uint16(tile&1) * 0x1000
			tileNum := uint16(tile &^ 1)
			if row >= 8 {
				tileNum++
				row -= 8
			}
			tileAddr = table + tileNum*16 + uint16(row)
		} else {
			tileAddr = spriteTable + uint16(tile)*16 + uint16(row)
		}

		lo := p.readVRAM(tileAddr)
		hi := p.readVRAM(tileAddr + 8)

		for bit := 0; bit < 8; bit++ {
			col := bit
			if !flipH {
				col = 7 - bit
			}
			hiBit := (hi >> uint(col)) & 1
			loBit := (lo >> uint(col)) & 1
			colorIdx := hiBit<<1 | loBit
			if colorIdx == 0 {
				continue
			}
			screenX := int(sx) + bit
			if screenX >= screenWidth {
				continue
			}
			slots = append(slots, spriteSlot{
				x:         byte(screenX),
				colorIdx:  colorIdx,
				paletteHi: paletteHi,
				behindBG:  behindBG,
				isSprite0: i == 0,
			})
		}
	}

	drawn := make(map[byte]bool, len(slots))
	for _, s := range slots {
		if drawn[s.x] {
			continue
		}
		bgColor := p.bgColorIndex[s.x]
		if s.isSprite0 && bgColor != 0 && int(s.x) >= 1 && int(s.x) <= 254 {
			p.statusSprite0 = true
		}
		if s.behindBG && bgColor != 0 {
			continue
		}
		if int(s.x) < 8 && p.mask&maskShowSpritesLeft == 0 {
			continue
		}
		color := nesColorPalette[p.readPalette(0x3F00+uint16(s.paletteHi)*4+uint16(s.colorIdx))&0x3F]
		p.frameBuffer[y*screenWidth+int(s.x)] = color
		drawn[s.x] = true
	}
}
