package theme

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
)

// detector reads one terminal's config below home.
type detector struct {
	name  string
	dir   func(home string) string
	parse func(dir string) (Palette, bool)
}

var detectors = []detector{
	{
		name: "omarchy",
		dir:  func(home string) string { return filepath.Join(home, ".config", "omarchy", "current", "theme") },
		parse: func(dir string) (Palette, bool) {
			return parseAlacritty(filepath.Join(dir, "alacritty.toml"))
		},
	},
	{
		name:  "alacritty",
		dir:   func(home string) string { return filepath.Join(home, ".config", "alacritty") },
		parse: func(dir string) (Palette, bool) { return parseAlacritty(filepath.Join(dir, "alacritty.toml")) },
	},
	{
		name:  "kitty",
		dir:   func(home string) string { return filepath.Join(home, ".config", "kitty") },
		parse: func(dir string) (Palette, bool) { return parseKitty(filepath.Join(dir, "kitty.conf")) },
	},
	{
		name:  "foot",
		dir:   func(home string) string { return filepath.Join(home, ".config", "foot") },
		parse: func(dir string) (Palette, bool) { return parseFoot(filepath.Join(dir, "foot.ini")) },
	},
}

// Detect loads the palette of the first terminal config found under the
// user's home directory.
func Detect() Palette {
	home, err := os.UserHomeDir()
	if err != nil {
		return applyEnv(DefaultPalette())
	}
	return DetectIn(home)
}

// DetectIn is Detect with an explicit home directory.
func DetectIn(home string) Palette {
	for _, d := range detectors {
		if p, ok := d.parse(d.dir(home)); ok {
			return applyEnv(p)
		}
	}
	return applyEnv(DefaultPalette())
}

// configDirs lists the directories the watcher should follow.
func configDirs(home string) []string {
	dirs := make([]string, len(detectors))
	for i, d := range detectors {
		dirs[i] = d.dir(home)
	}
	return dirs
}

// fromColors builds a palette from the three colours terminals agree on.
// A missing selection colour is mixed from bg and fg.
func fromColors(bg, fg, selection string) (Palette, bool) {
	if bg == "" || fg == "" {
		return Palette{}, false
	}
	p := DefaultPalette()
	p.BG = normalizeHex(bg)
	p.FG = normalizeHex(fg)
	p.Muted = Dim(p.FG, 0.5)
	if selection != "" {
		p.AccentBg = normalizeHex(selection)
	} else {
		p.AccentBg = Mix(p.BG, p.FG, 0.15)
	}
	return p, true
}

type alacrittyColors struct {
	Colors struct {
		Primary struct {
			Background string `toml:"background"`
			Foreground string `toml:"foreground"`
		} `toml:"primary"`
		Selection struct {
			Background string `toml:"background"`
		} `toml:"selection"`
	} `toml:"colors"`
}

func parseAlacritty(path string) (Palette, bool) {
	var cfg alacrittyColors
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Palette{}, false
	}
	c := cfg.Colors
	return fromColors(c.Primary.Background, c.Primary.Foreground, c.Selection.Background)
}

func parseKitty(path string) (Palette, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Palette{}, false
	}
	defer f.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		values[fields[0]] = fields[1]
	}
	return fromColors(values["background"], values["foreground"], values["selection_background"])
}

func parseFoot(path string) (Palette, bool) {
	cfg, err := ini.Load(path)
	if err != nil {
		return Palette{}, false
	}
	colors, err := cfg.GetSection("colors")
	if err != nil {
		return Palette{}, false
	}
	return fromColors(
		colors.Key("background").String(),
		colors.Key("foreground").String(),
		colors.Key("selection-background").String(),
	)
}

// applyEnv applies OXV_* colour overrides
func applyEnv(p Palette) Palette {
	for env, field := range map[string]*string{
		"OXV_BG":     &p.BG,
		"OXV_FG":     &p.FG,
		"OXV_MUTED":  &p.Muted,
		"OXV_ACCENT": &p.Accent,
	} {
		if v := os.Getenv(env); v != "" {
			*field = normalizeHex(v)
		}
	}
	return p
}

var (
	hex6 = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	hex3 = regexp.MustCompile(`^#[0-9a-fA-F]{3}$`)
)

// normalizeHex turns "0xRRGGBB", "RRGGBB" and "#RGB" into "#rrggbb".
// Anything else is returned unchanged apart from the leading '#'.
func normalizeHex(color string) string {
	color = strings.TrimSpace(color)
	if strings.HasPrefix(color, "0x") || strings.HasPrefix(color, "0X") {
		color = color[2:]
	}
	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}

	switch {
	case hex6.MatchString(color):
		return strings.ToLower(color)
	case hex3.MatchString(color):
		r, g, b := color[1:2], color[2:3], color[3:4]
		return strings.ToLower("#" + r + r + g + g + b + b)
	}
	return color
}

func rgb(hex string) (r, g, b float64, ok bool) {
	hex = normalizeHex(hex)
	if !hex6.MatchString(hex) {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return float64(v >> 16 & 0xff), float64(v >> 8 & 0xff), float64(v & 0xff), true
}

func toHex(r, g, b float64) string {
	return "#" + strconv.FormatUint(uint64(r)<<16|uint64(g)<<8|uint64(b)|1<<24, 16)[1:]
}

// Dim scales the brightness of a hex color by factor.
func Dim(hex string, factor float64) string {
	r, g, b, ok := rgb(hex)
	if !ok {
		return hex
	}
	return toHex(r*factor, g*factor, b*factor)
}

// Mix blends two colors; t=0 is a, t=1 is b.
func Mix(a, b string, t float64) string {
	r1, g1, b1, ok1 := rgb(a)
	r2, g2, b2, ok2 := rgb(b)
	if !ok1 || !ok2 {
		return a
	}
	return toHex(r1*(1-t)+r2*t, g1*(1-t)+g2*t, b1*(1-t)+b2*t)
}
