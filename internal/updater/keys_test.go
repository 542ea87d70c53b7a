package updater

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputDirDerivation(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"platforms/android.tar.bz2", "data/platforms/android"},
		{"compilers/compiler_cordova_8.0.0.tar.bz2", "data/compilers/8.0.0"},
		{"plugins/cordova-plugin-camera.tar.bz2", "data/plugins/cordova-plugin-camera"},
		{"sdks/android-sdk.tar.bz2", "data/sdks/android-sdk"},
		{"unrelated/thing.zip", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, outputDir("data", c.key), c.key)
	}
}

func TestPluginAndLibKeyPatterns(t *testing.T) {
	assert.True(t, rePlugin.MatchString("plugins/foo.tar.bz2"))
	m := reLib.FindStringSubmatch("libs/cordova-android@8.0.0-linux.tar.bz2")
	assert.NotNil(t, m)
	assert.Equal(t, "cordova-android@8.0.0", m[1])
	assert.Equal(t, "linux", m[2])
}

func TestRelevantFiltersUnknownFolders(t *testing.T) {
	assert.True(t, relevant("platforms/android.tar.bz2"))
	assert.False(t, relevant("README.md"))
}
