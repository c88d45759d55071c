package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalogShippedFile(t *testing.T) {
	r, err := LoadCatalog("../../config/stages.yaml")
	require.NoError(t, err)

	main := r.OrderedMainStages()
	require.Len(t, main, 13)
	assert.Equal(t, Avaluo, r.First().ID)
	assert.Equal(t, CierreArchivo, r.Terminal().ID)
	assert.True(t, r.IsSpecial(Suspended))
	assert.True(t, r.IsSpecial(Cancelled))

	// Percentage anchors over the 13-stage pipeline.
	assert.Equal(t, 0, r.Progress(Avaluo, 77))
	assert.Equal(t, 8, r.Progress(RevisionLegal, 0))
	assert.Equal(t, 100, r.Progress(CierreArchivo, 0))

	avaluo, err := r.Lookup(Avaluo)
	require.NoError(t, err)
	require.NotNil(t, avaluo.AutoAssignment)
	assert.Equal(t, auth.RoleAnalyst, avaluo.AutoAssignment.Role)
	require.NotNil(t, avaluo.AutoAssignment.Department)
	assert.Equal(t, "AVALUOS", *avaluo.AutoAssignment.Department)

	required := r.RequiredItems(Avaluo)
	require.Len(t, required, 2)
	assert.Equal(t, "avaluo-informe", required[0].ID)
	assert.Equal(t, "avaluo-certificado", required[1].ID)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadCatalogInvalidYAML(t *testing.T) {
	path := writeCatalog(t, "stages: [not: valid: yaml")
	_, err := LoadCatalog(path)
	require.Error(t, err)
}

func TestLoadCatalogUnknownAutoAssignmentRole(t *testing.T) {
	path := writeCatalog(t, `
stages:
  - id: AVALUO
    name: Avalúo
    sequence_order: 1
    auto_assignment:
      role: INTERN
  - id: REVISION_LEGAL
    name: Estudio de títulos
    sequence_order: 2
  - id: SUSPENDED
    special: true
  - id: CANCELLED
    special: true
`)
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTERN")
}

func TestLoadCatalogDuplicateChecklistItem(t *testing.T) {
	path := writeCatalog(t, `
stages:
  - id: AVALUO
    name: Avalúo
    sequence_order: 1
    checklist:
      - id: avaluo-informe
        label: Informe
        required: true
      - id: avaluo-informe
        label: Informe otra vez
        required: true
  - id: REVISION_LEGAL
    name: Estudio de títulos
    sequence_order: 2
  - id: SUSPENDED
    special: true
  - id: CANCELLED
    special: true
`)
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "avaluo-informe")
}
