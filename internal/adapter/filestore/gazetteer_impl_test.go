package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGazetteer = `
districts:
  - id: 11
    name: Lisboa
    counties:
      - id: 1106
        name: Lisboa
        parishes:
          - {id: 110601, name: Benfica}
          - {id: 110602, name: Santa Maria Maior}
      - id: 1111
        name: Sintra
`

func TestLoadGazetteer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gazetteer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleGazetteer), 0o644))

	g, err := NewGazetteerRepo(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, g.Districts, 1)
	require.Len(t, g.Districts[0].Counties, 2)

	lx := g.Districts[0].Counties[0]
	assert.Equal(t, 11, lx.DistrictID)
	require.Len(t, lx.Parishes, 2)
	assert.Equal(t, "Santa Maria Maior", lx.Parishes[1].Name)
	assert.Equal(t, 1106, lx.Parishes[1].CountyID)
}

func TestParseGazetteerRejectsDuplicates(t *testing.T) {
	_, err := ParseGazetteer([]byte(`
districts:
  - id: 11
    name: Lisboa
    counties:
      - {id: 1106, name: Lisboa}
      - {id: 1106, name: Lisboa again}
`))
	assert.ErrorContains(t, err, "duplicate county id 1106")
}

func TestParseGazetteerEmpty(t *testing.T) {
	_, err := ParseGazetteer([]byte("districts: []"))
	assert.Error(t, err)
}
