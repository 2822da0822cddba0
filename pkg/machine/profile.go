package machine

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"go8080/pkg/cpu"
	"go8080/pkg/video"
)

var (
	ErrUnknownProfile   = errors.New("unknown profile")
	ErrDuplicateProfile = errors.New("duplicate profile")
	ErrImageSize        = errors.New("image larger than its slot")
	ErrNoVideo          = errors.New("profile has no video board")
)

// Image is one program file and where it sits in memory. The first name
// found is used, so a profile can accept the common dump names.
type Image struct {
	Files  []string
	Offset uint16
	// Size is the largest accepted file. Zero accepts any size that fits.
	Size int
}

// Segment is a loaded image.
type Segment struct {
	Name   string
	Offset uint16
	Data   []byte
}

// Profile describes one target program: its images, memory map and the
// timing of its video interrupts.
type Profile struct {
	ID          int
	Name        string
	Description string

	Images []Image
	CPU    cpu.Config
	Entry  uint16
	// Patches are applied after loading.
	Patches map[uint16]byte
	// BDOS installs the CP/M call stub for diagnostic programs.
	BDOS bool

	// Interrupts enables the twice-per-frame restart cadence.
	Interrupts bool
	Vectors    [2]byte
	ClockHz    int
	FrameRate  int

	VideoStart uint16
	VideoSize  int

	// HighScoreAddr is the little-endian BCD high score in RAM. Zero means
	// none.
	HighScoreAddr uint16
}

// HalfFrameCycles is the CPU cycle count between interrupts.
func (p Profile) HalfFrameCycles() uint64 {
	if p.FrameRate <= 0 {
		return 0
	}
	return uint64(p.ClockHz / p.FrameRate / 2)
}

func Invaders() Profile {
	cfg := cpu.Config{
		MemorySize:   0x4000,
		AddressLimit: 0x6000,
		ROMSize:      0x2000,
		Mirror:       cpu.Mirror{Start: 0x4000, End: 0x5FFF, Offset: 0x2000},
		Guards:       cpu.GuardPolicy{Stack: true, ProgramCounter: true},
	}
	return Profile{
		ID:          0,
		Name:        "invaders",
		Description: "Space Invaders (Midway, 1978)",
		Images: []Image{
			{Files: []string{"invaders.h", "SpaceInvaders.h"}, Offset: 0x0000, Size: 0x800},
			{Files: []string{"invaders.g", "SpaceInvaders.g"}, Offset: 0x0800, Size: 0x800},
			{Files: []string{"invaders.f", "SpaceInvaders.f"}, Offset: 0x1000, Size: 0x800},
			{Files: []string{"invaders.e", "SpaceInvaders.e"}, Offset: 0x1800, Size: 0x800},
		},
		CPU:           cfg,
		Interrupts:    true,
		Vectors:       [2]byte{1, 2},
		ClockHz:       2_000_000,
		FrameRate:     60,
		VideoStart:    0x2400,
		VideoSize:     video.MemorySize,
		HighScoreAddr: 0x20F4,
	}
}

// CPUDiag is the Microcosm cpudiag exerciser under a minimal CP/M host.
func CPUDiag() Profile {
	return Profile{
		ID:          1,
		Name:        "cpudiag",
		Description: "8080 instruction exerciser (CP/M)",
		Images: []Image{
			{Files: []string{"cpudiag.bin", "CPUDIAG.COM", "cpudiag.com"}, Offset: 0x100, Size: 1453},
		},
		CPU: cpu.Config{
			MemorySize: 0x4000,
			ROMSize:    0x100,
			Guards:     cpu.GuardPolicy{Stack: true, ProgramCounter: true},
		},
		Entry: 0x100,
		// Moves the initial stack from 0x06AD, inside the program, to 0x07AD.
		Patches:   map[uint16]byte{0x0170: 0x07},
		BDOS:      true,
		ClockHz:   2_000_000,
		FrameRate: 60,
	}
}

// CPM runs a bare program assembled for the CP/M transient area. It has no
// images of its own; callers supply the program as a segment.
func CPM() Profile {
	return Profile{
		ID:          2,
		Name:        "cpm",
		Description: "CP/M transient program",
		CPU: cpu.Config{
			MemorySize: 0x10000,
			Guards:     cpu.GuardPolicy{ProgramCounter: true},
		},
		Entry:     0x100,
		BDOS:      true,
		ClockHz:   2_000_000,
		FrameRate: 60,
	}
}

var registry = map[string]Profile{}

func init() {
	for _, p := range []Profile{Invaders(), CPUDiag(), CPM()} {
		if err := Register(p); err != nil {
			panic(err)
		}
	}
}

// Register adds a profile. Names and IDs must be unique. Register is meant
// for init time and is not safe for concurrent use.
func Register(p Profile) error {
	name := strings.ToLower(p.Name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownProfile)
	}
	for _, existing := range registry {
		if existing.ID == p.ID || strings.EqualFold(existing.Name, name) {
			return fmt.Errorf("%w: %s (id %d)", ErrDuplicateProfile, p.Name, p.ID)
		}
	}
	registry[name] = p
	return nil
}

// Lookup finds a profile by name or numeric ID.
func Lookup(key string) (Profile, error) {
	if p, ok := registry[strings.ToLower(key)]; ok {
		return p, nil
	}
	if id, err := strconv.Atoi(key); err == nil {
		for _, p := range registry {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, key)
}

// LookupGame is Lookup restricted to profiles with a video window and
// interrupts, the ones a front end can display.
func LookupGame(key string) (Profile, error) {
	p, err := Lookup(key)
	if err != nil {
		return p, err
	}
	if !p.HasVideo() {
		return Profile{}, fmt.Errorf("%w: %q", ErrNoVideo, p.Name)
	}
	return p, nil
}

// HasVideo reports whether the profile renders frames.
func (p Profile) HasVideo() bool {
	return p.Interrupts && p.VideoSize > 0
}

// Profiles lists the registered profiles by ID.
func Profiles() []Profile {
	list := make([]Profile, 0, len(registry))
	for _, p := range registry {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// LoadImages reads the profile's images from fsys.
func LoadImages(fsys fs.FS, p Profile) ([]Segment, error) {
	segments := make([]Segment, 0, len(p.Images))
	for _, img := range p.Images {
		seg, err := loadImage(fsys, img)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func loadImage(fsys fs.FS, img Image) (Segment, error) {
	var firstErr error
	for _, name := range img.Files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if img.Size > 0 && len(data) > img.Size {
			return Segment{}, fmt.Errorf("%w: %s is %d bytes, slot holds %d",
				ErrImageSize, name, len(data), img.Size)
		}
		return Segment{Name: name, Offset: img.Offset, Data: data}, nil
	}
	if firstErr == nil {
		firstErr = fs.ErrNotExist
	}
	return Segment{}, fmt.Errorf("loading image %s: %w", strings.Join(img.Files, " or "), firstErr)
}
