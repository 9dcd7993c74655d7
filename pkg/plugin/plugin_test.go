package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/litescript/oxviewer/pkg/source"
)

func TestInfoFilename(t *testing.T) {
	info := Info{Name: "sample", Uploader: "hippo", Version: 3}

	assert.Equal(t, "sample-hippo-3.so", info.Filename("so"))
	assert.Equal(t, "sample-hippo-3.lua", info.Filename(".lua"))
	assert.Equal(t, "hippo/sample@3", info.String())
}

func TestInfoSamePackage(t *testing.T) {
	a := Info{Name: "sample", Uploader: "hippo", Version: 1, DisplayName: "Sample"}

	assert.True(t, a.SamePackage(Info{Name: "sample", Uploader: "hippo", Version: 2}))
	assert.False(t, a.SamePackage(Info{Name: "sample", Uploader: "other", Version: 1}))
	assert.False(t, a.SamePackage(Info{Name: "other", Uploader: "hippo", Version: 1}))
}

func TestInfoValidate(t *testing.T) {
	valid := Info{Name: "sample", Uploader: "hippo", Version: 1, URL: "file:///tmp/x.so"}

	tests := []struct {
		name    string
		mutate  func(*Info)
		wantErr bool
	}{
		{"valid", func(*Info) {}, false},
		{"empty name", func(i *Info) { i.Name = "" }, true},
		{"path in name", func(i *Info) { i.Name = "../evil" }, true},
		{"dash in uploader", func(i *Info) { i.Uploader = "a-b" }, true},
		{"dot dot uploader", func(i *Info) { i.Uploader = ".." }, true},
		{"negative version", func(i *Info) { i.Version = -1 }, true},
		{"no url", func(i *Info) { i.URL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := valid
			tt.mutate(&info)
			err := info.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateLoaded(t *testing.T) {
	assert.False(t, State{}.Loaded())
	assert.True(t, State{Plugin: emptyPlugin{}}.Loaded())
}

type emptyPlugin struct{}

func (emptyPlugin) Sections() []source.Section { return nil }

func TestNopListener(t *testing.T) {
	var l Listener = NopListener{}
	l.OnInstallStart(Info{})
	l.OnUninstallFailure(Info{}, nil)
}
