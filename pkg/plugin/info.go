// Package plugin describes installable source plugins and the manager that
// installs, loads and removes them.
package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/litescript/oxviewer/pkg/source"
)

// Info is the metadata of a plugin. A plugin is identified by the pair of
// Name and Uploader.
type Info struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`

	Uploader        string `json:"uploader"`
	DisplayUploader string `json:"displayUploader"`

	Version        int    `json:"version"`
	DisplayVersion string `json:"displayVersion"`

	// URL is where the plugin artifact is fetched from on install.
	URL string `json:"url"`
}

// SamePackage reports whether other names the same plugin, ignoring version.
func (i Info) SamePackage(other Info) bool {
	return i.Name == other.Name && i.Uploader == other.Uploader
}

// Validate checks the fields used to build file names and to fetch the
// artifact.
func (i Info) Validate() error {
	var errs []error
	if err := checkIdent("name", i.Name); err != nil {
		errs = append(errs, err)
	}
	if err := checkIdent("uploader", i.Uploader); err != nil {
		errs = append(errs, err)
	}
	if i.Version < 0 {
		errs = append(errs, fmt.Errorf("version %d is negative", i.Version))
	}
	if i.URL == "" {
		errs = append(errs, errors.New("url is empty"))
	}
	return errors.Join(errs...)
}

// Filename is the artifact file name: name-uploader-version.ext.
func (i Info) Filename(ext string) string {
	return fmt.Sprintf("%s-%s-%d.%s", i.Name, i.Uploader, i.Version, strings.TrimPrefix(ext, "."))
}

func (i Info) String() string {
	return fmt.Sprintf("%s/%s@%d", i.Uploader, i.Name, i.Version)
}

// Name and uploader end up in file names; keep them to a safe alphabet.
func checkIdent(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is empty", field)
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return fmt.Errorf("%s %q contains %q", field, v, r)
		}
	}
	if v == "." || v == ".." {
		return fmt.Errorf("%s %q is reserved", field, v)
	}
	return nil
}

// Plugin is what a loaded plugin artifact provides. A Go plugin exports a
// variable or function named Symbol returning one.
type Plugin interface {
	Sections() []source.Section
}

// Symbol is the exported name looked up in Go plugin artifacts.
const Symbol = "Plugin"

// State is an installed plugin. Plugin is nil while the plugin is disabled
// or failed to load; Err holds the load failure.
type State struct {
	Info    Info
	Enabled bool
	Plugin  Plugin
	Err     error
}

// Loaded reports whether the plugin is running.
func (s State) Loaded() bool {
	return s.Plugin != nil
}
