package pluginman

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

func TestParseDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.ini")
	require.NoError(t, os.WriteFile(path, []byte(`
[plugin]
name = sample
display_name = Sample Source
uploader = hippo
version = 4
url = sample.lua
`), 0644))

	info, err := ParseDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, plugin.Info{
		Name:            "sample",
		DisplayName:     "Sample Source",
		Uploader:        "hippo",
		DisplayUploader: "hippo",
		Version:         4,
		DisplayVersion:  "4",
		URL:             filepath.Join(dir, "sample.lua"),
	}, info)
}

func TestParseDescriptor_Errors(t *testing.T) {
	tests := map[string]string{
		"no section":  "name = x\n",
		"bad version": "[plugin]\nname = x\nuploader = y\nversion = one\nurl = a.lua\n",
		"no name":     "[plugin]\nuploader = y\nversion = 1\nurl = a.lua\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "d.ini")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := ParseDescriptor(path)
			assert.Error(t, err)
		})
	}
}

func TestParseDescriptor_KeepsURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.ini")
	require.NoError(t, os.WriteFile(path, []byte("[plugin]\nname = x\nuploader = y\nversion = 1\nurl = https://example.org/x.lua\n"), 0644))

	info, err := ParseDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/x.lua", info.URL)
}

type symbolPlugin struct{}

func (symbolPlugin) Sections() []source.Section { return nil }

func TestResolveSymbol(t *testing.T) {
	var iface plugin.Plugin = symbolPlugin{}
	var nilIface plugin.Plugin

	p, err := resolveSymbol(&iface)
	require.NoError(t, err)
	assert.Equal(t, symbolPlugin{}, p)

	p, err = resolveSymbol(func() plugin.Plugin { return symbolPlugin{} })
	require.NoError(t, err)
	assert.NotNil(t, p)

	p, err = resolveSymbol(&symbolPlugin{})
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = resolveSymbol(&nilIface)
	assert.Error(t, err)
	_, err = resolveSymbol(func() plugin.Plugin { return nil })
	assert.Error(t, err)
	_, err = resolveSymbol(42)
	assert.Error(t, err)
}

func TestParseDescriptor_Bundled(t *testing.T) {
	for _, path := range []string{
		filepath.Join("..", "..", "examples", "plugins", "lua", "picsum.ini"),
		filepath.Join("..", "..", "examples", "plugins", "sample", "sample.ini"),
	} {
		info, err := ParseDescriptor(path)
		require.NoError(t, err, path)
		assert.Equal(t, "oxviewer", info.Uploader)
		assert.Equal(t, filepath.Dir(path), filepath.Dir(info.URL))
	}
}
