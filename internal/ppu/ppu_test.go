package ppu

import (
	"testing"

	"github.com/mwasson/nescore/internal/cartridge"
	"github.com/mwasson/nescore/internal/memory"
)

type stubMapper struct {
	chr       [0x2000]byte
	mirroring cartridge.Mirroring
}

func (m *stubMapper) ReadPRG(addr uint16) byte     { return 0 }
func (m *stubMapper) WritePRG(addr uint16, v byte) {}
func (m *stubMapper) ReadCHR(addr uint16) byte     { return m.chr[addr] }
func (m *stubMapper) WriteCHR(addr uint16, v byte) { m.chr[addr] = v }
func (m *stubMapper) Mirroring() cartridge.Mirroring {
	return m.mirroring
}

func writeReg(p *PPU, addr uint16, v byte) { p.OnWrite(nil, addr, v) }
func readReg(p *PPU, addr uint16) byte     { return p.OnRead(nil, addr) }

func TestPPUADDRWriteThenPPUDATARoundTrip(t *testing.T) {
	p := New(&stubMapper{mirroring: cartridge.Vertical})

	writeReg(p, 0x2006, 0x23) // high byte of $2305 (nametable 0)
	writeReg(p, 0x2006, 0x05) // low byte
	writeReg(p, 0x2007, 0xAB)

	writeReg(p, 0x2006, 0x23)
	writeReg(p, 0x2006, 0x05)
	_ = readReg(p, 0x2007) // first read returns stale buffer
	got := readReg(p, 0x2007)
	if got != 0xAB {
		t.Fatalf("PPUDATA round trip = %#x, want $AB", got)
	}
}

func TestVerticalMirroringAliasesNametables0and2(t *testing.T) {
	p := New(&stubMapper{mirroring: cartridge.Vertical})

	p.writeVRAM(0x2000, 0x11)
	if got := p.readVRAM(0x2800); got != 0x11 {
		t.Fatalf("nametable 2 = %#x, want $11 (aliased with nametable 0)", got)
	}
}

func TestPaletteMirrorsBackdropEntries(t *testing.T) {
	p := New(&stubMapper{})

	p.writePalette(0x3F00, 0x20)
	if got := p.readPalette(0x3F10); got != 0x20 {
		t.Fatalf("$3F10 = %#x, want $20 (mirrors universal backdrop $3F00)", got)
	}
}

func TestVBlankFlagSetsNMIAndClearsOnStatusRead(t *testing.T) {
	mapper := &stubMapper{}
	p := New(mapper)

	nmiCount := 0
	p.SetNMICallback(func() { nmiCount++ })
	writeReg(p, 0x2000, ctrlNMIEnable)

	// Run until one frame completes; the PPU should have flagged VBlank
	// and fired the NMI callback exactly once at scanline 241, dot 1.
	frames := 0
	p.SetFrameCompleteCallback(func() { frames++ })
	for frames == 0 {
		p.Step()
	}

	if nmiCount != 1 {
		t.Fatalf("nmi callback fired %d times, want 1", nmiCount)
	}
	if !p.statusVBlank {
		t.Fatalf("statusVBlank not set after entering VBlank")
	}

	status := readReg(p, 0x2002)
	if status&0x80 == 0 {
		t.Fatalf("PPUSTATUS bit 7 not set on read")
	}
	if p.statusVBlank {
		t.Fatalf("reading PPUSTATUS did not clear VBlank flag")
	}
}

func TestOAMDMATargetWritesThroughOAMAddr(t *testing.T) {
	p := New(&stubMapper{})
	writeReg(p, 0x2003, 0x10) // OAMADDR = $10

	if got := p.OAMAddr(); got != 0x10 {
		t.Fatalf("OAMAddr() = %#x, want $10", got)
	}
	p.DMAWrite(0, 0x55)
	if p.oam[0x10] != 0x55 {
		t.Fatalf("DMA write landed at %#x, want OAM[$10]", p.oam[0x10])
	}
}

func TestMirrorAddrIsIdempotent(t *testing.T) {
	modes := []cartridge.Mirroring{
		cartridge.Horizontal, cartridge.Vertical,
		cartridge.SingleA, cartridge.SingleB, cartridge.FourScreen,
	}
	for _, mode := range modes {
		p := New(&stubMapper{mirroring: mode})
		for addr := uint16(0x2000); addr < 0x3000; addr += 0x101 {
			once := p.mirrorAddr(addr)
			twice := p.mirrorAddr(0x2000 + once)
			if twice != once {
				t.Fatalf("%v: mirrorAddr(mirrorAddr($%04X)) = $%03X, want $%03X", mode, addr, twice, once)
			}
		}
	}
}

func TestWriteToggleResetByStatusRead(t *testing.T) {
	p := New(&stubMapper{})

	writeReg(p, 0x2006, 0x21) // first PPUADDR write, w goes high
	_ = readReg(p, 0x2002)    // resets w

	// With w reset, the next two writes form a complete high/low pair.
	writeReg(p, 0x2006, 0x23)
	writeReg(p, 0x2006, 0x05)
	if p.v != 0x2305 {
		t.Fatalf("v = $%04X, want $2305 (status read must reset the write toggle)", p.v)
	}
}

// A solid tile 0 with background enabled fills the visible frame with
// the background palette's entry-1 color.
func TestBackgroundRenderingFillsFrameWithPaletteColor(t *testing.T) {
	mapper := &stubMapper{mirroring: cartridge.Vertical}
	// Tile 0: low plane all ones, high plane zero -> color index 1
	// for every pixel.
	for row := 0; row < 8; row++ {
		mapper.chr[row] = 0xFF
	}
	p := New(mapper)

	p.writePalette(0x3F01, 0x21)
	writeReg(p, 0x2001, maskShowBackground|maskShowBGLeft)

	frames := 0
	p.SetFrameCompleteCallback(func() { frames++ })
	for frames == 0 {
		p.Step()
	}

	frame := p.GetFrameBuffer()
	want := nesColorPalette[0x21]
	for _, idx := range []int{0, 128, 255, 120*256 + 37, 239*256 + 255} {
		if frame[idx] != want {
			t.Fatalf("frame[%d] = %#08x, want %#08x", idx, frame[idx], want)
		}
	}
}

func TestSprite0HitRequiresOverlappingOpaquePixels(t *testing.T) {
	mapper := &stubMapper{mirroring: cartridge.Vertical}
	for row := 0; row < 8; row++ {
		mapper.chr[row] = 0xFF // tile 0, opaque everywhere
	}
	p := New(mapper)
	p.writePalette(0x3F01, 0x21)

	// Sprite 0: tile 0 at (40, 10); OAM stores y-1.
	writeReg(p, 0x2003, 0x00)
	for _, b := range []byte{9, 0, 0, 40} {
		writeReg(p, 0x2004, b)
	}

	writeReg(p, 0x2001, maskShowBackground|maskShowSprites|maskShowBGLeft|maskShowSpritesLeft)

	frames := 0
	p.SetFrameCompleteCallback(func() { frames++ })
	for frames == 0 {
		p.Step()
	}

	if !p.statusSprite0 {
		t.Fatalf("sprite-0 hit not set with overlapping opaque sprite and background")
	}
	if readReg(p, 0x2002)&0x40 == 0 {
		t.Fatalf("PPUSTATUS bit 6 not visible to the CPU")
	}
}

func TestSprite0HitNotSetWithoutBackground(t *testing.T) {
	mapper := &stubMapper{mirroring: cartridge.Vertical}
	for row := 0; row < 8; row++ {
		mapper.chr[row] = 0xFF
	}
	p := New(mapper)

	writeReg(p, 0x2003, 0x00)
	for _, b := range []byte{9, 0, 0, 40} {
		writeReg(p, 0x2004, b)
	}

	// Sprites only; with the background disabled there is no opaque
	// background pixel to collide with.
	writeReg(p, 0x2001, maskShowSprites|maskShowSpritesLeft)

	frames := 0
	p.SetFrameCompleteCallback(func() { frames++ })
	for frames == 0 {
		p.Step()
	}

	if p.statusSprite0 {
		t.Fatalf("sprite-0 hit set with background rendering disabled")
	}
}

func TestNinthSpriteOnScanlineSetsOverflow(t *testing.T) {
	p := New(&stubMapper{mirroring: cartridge.Vertical})

	// Nine sprites all on scanline 20.
	for i := 0; i < 9; i++ {
		p.oam[i*4] = 19       // y-1
		p.oam[i*4+3] = byte(i * 16)
	}
	writeReg(p, 0x2001, maskShowSprites)

	frames := 0
	p.SetFrameCompleteCallback(func() { frames++ })
	for frames == 0 {
		p.Step()
	}

	if !p.statusOverflow {
		t.Fatalf("sprite overflow not set with nine sprites on one scanline")
	}
}

var _ memory.MemoryListener = (*PPU)(nil)
var _ memory.OAMTarget = (*PPU)(nil)
