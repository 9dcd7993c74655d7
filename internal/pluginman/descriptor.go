package pluginman

import (
	"fmt"
	"net/url"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/litescript/oxviewer/pkg/plugin"
)

// ParseDescriptor reads plugin metadata from the [plugin] section of an ini
// file:
//
//	[plugin]
//	name = sample
//	uploader = hippo
//	version = 1
//	url = sample.lua
//
// A relative url is resolved against the descriptor's directory. Display
// fields default to their plain counterparts.
func ParseDescriptor(path string) (plugin.Info, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return plugin.Info{}, fmt.Errorf("read descriptor: %w", err)
	}

	sec, err := cfg.GetSection("plugin")
	if err != nil {
		return plugin.Info{}, fmt.Errorf("descriptor %s: %w", path, err)
	}

	version, err := sec.Key("version").Int()
	if err != nil {
		return plugin.Info{}, fmt.Errorf("descriptor %s: version: %w", path, err)
	}

	info := plugin.Info{
		Name:            sec.Key("name").String(),
		DisplayName:     sec.Key("display_name").String(),
		Uploader:        sec.Key("uploader").String(),
		DisplayUploader: sec.Key("display_uploader").String(),
		Version:         version,
		DisplayVersion:  sec.Key("display_version").String(),
		URL:             sec.Key("url").String(),
	}
	if info.DisplayName == "" {
		info.DisplayName = info.Name
	}
	if info.DisplayUploader == "" {
		info.DisplayUploader = info.Uploader
	}
	if info.DisplayVersion == "" {
		info.DisplayVersion = sec.Key("version").String()
	}
	if info.URL != "" && !isURL(info.URL) && !filepath.IsAbs(info.URL) {
		info.URL = filepath.Join(filepath.Dir(path), info.URL)
	}

	if err := info.Validate(); err != nil {
		return plugin.Info{}, fmt.Errorf("descriptor %s: %w", path, err)
	}
	return info, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && len(u.Scheme) > 1
}
