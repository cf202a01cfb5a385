package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestQualityTargets(t *testing.T) {
	assert.Equal(t, int64(1200000), QualityNormal.TargetBitrate())
	assert.Equal(t, int64(2400000), QualityHD720.TargetBitrate())
	assert.Equal(t, int64(3600000), QualityHD1080.TargetBitrate())
	assert.Equal(t, int64(2400), QualityHD720.Kbps())
}

func TestParseQuality(t *testing.T) {
	tests := map[string]Quality{
		"":        QualityNormal,
		"normal":  QualityNormal,
		"HD720":   QualityHD720,
		"720p":    QualityHD720,
		" hd1080": QualityHD1080,
		"1080":    QualityHD1080,
	}
	for in, want := range tests {
		got, err := ParseQuality(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseQuality("4k")
	assert.Error(t, err)
}

func TestQualityYAML(t *testing.T) {
	var doc struct {
		Quality Quality `yaml:"quality"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("quality: hd1080\n"), &doc))
	assert.Equal(t, QualityHD1080, doc.Quality)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "quality: HD1080\n", string(out))
}
