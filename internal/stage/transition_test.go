package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]*Stage{
		{ID: Avaluo, Name: "Avalúo", SequenceOrder: 1},
		{ID: RevisionLegal, Name: "Estudio de títulos", SequenceOrder: 2},
		{ID: OfertaCompra, Name: "Oferta de compra", SequenceOrder: 3},
		{ID: CierreArchivo, Name: "Cierre y archivo", SequenceOrder: 4},
		{ID: Suspended, Name: "Suspendido", Special: true},
		{ID: Cancelled, Name: "Cancelado", Special: true},
	})
	require.NoError(t, err)
	return r
}

func TestClassifyMainStageOrdering(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name    string
		current ID
		target  ID
		want    ProgressionType
	}{
		{"advance one stage", Avaluo, RevisionLegal, Forward},
		{"advance skipping a stage", Avaluo, OfertaCompra, Forward},
		{"return one stage", OfertaCompra, RevisionLegal, Backward},
		{"return to the first stage", OfertaCompra, Avaluo, Backward},
		{"same stage is a degenerate jump", RevisionLegal, RevisionLegal, Jump},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Classify(tt.current, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifySpecialTargetsAlwaysAccepted(t *testing.T) {
	r := testRegistry(t)

	// Every stage, including the terminal stage and the specials
	// themselves, may enter a holding state.
	for _, current := range []ID{Avaluo, RevisionLegal, OfertaCompra, CierreArchivo, Suspended, Cancelled} {
		for _, target := range []ID{Suspended, Cancelled} {
			got, err := r.Classify(current, target)
			require.NoError(t, err, "%s -> %s", current, target)
			assert.Equal(t, Jump, got, "%s -> %s", current, target)
		}
	}
}

func TestClassifyFromSuspended(t *testing.T) {
	r := testRegistry(t)

	// Resuming into any main stage is a forward move.
	for _, target := range []ID{Avaluo, RevisionLegal, OfertaCompra, CierreArchivo} {
		got, err := r.Classify(Suspended, target)
		require.NoError(t, err)
		assert.Equal(t, Forward, got)
	}
}

func TestClassifyFromCancelled(t *testing.T) {
	r := testRegistry(t)

	got, err := r.Classify(Cancelled, Avaluo)
	require.NoError(t, err)
	assert.Equal(t, Forward, got, "reopening goes to the first main stage")

	for _, target := range []ID{RevisionLegal, OfertaCompra, CierreArchivo} {
		_, err := r.Classify(Cancelled, target)
		require.Error(t, err, "cancelled -> %s", target)
		assert.Equal(t, errors.ErrCodeInvalidTransition, errors.Code(err))
	}
}

func TestClassifyFromTerminalStage(t *testing.T) {
	r := testRegistry(t)

	// Only the holding states remain reachable once the case is closed.
	for _, target := range []ID{Avaluo, RevisionLegal, OfertaCompra} {
		_, err := r.Classify(CierreArchivo, target)
		require.Error(t, err, "closed -> %s", target)
		assert.Equal(t, errors.ErrCodeInvalidTransition, errors.Code(err))
	}

	got, err := r.Classify(CierreArchivo, Suspended)
	require.NoError(t, err)
	assert.Equal(t, Jump, got)
}

func TestClassifyUnknownStages(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Classify(Avaluo, ID("NO_SUCH_STAGE"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))

	_, err = r.Classify(ID("NO_SUCH_STAGE"), Avaluo)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestProgress(t *testing.T) {
	r := testRegistry(t)

	assert.Equal(t, 0, r.Progress(Avaluo, 55))
	assert.Equal(t, 33, r.Progress(RevisionLegal, 0))
	assert.Equal(t, 67, r.Progress(OfertaCompra, 0))
	assert.Equal(t, 100, r.Progress(CierreArchivo, 0))

	// Special stages freeze the current percentage.
	assert.Equal(t, 42, r.Progress(Suspended, 42))
	assert.Equal(t, 42, r.Progress(Cancelled, 42))
}

func TestRegistryValidation(t *testing.T) {
	specials := []*Stage{
		{ID: Suspended, Special: true},
		{ID: Cancelled, Special: true},
	}

	t.Run("rejects duplicate ids", func(t *testing.T) {
		_, err := NewRegistry(append([]*Stage{
			{ID: Avaluo, SequenceOrder: 1},
			{ID: Avaluo, SequenceOrder: 2},
		}, specials...))
		require.Error(t, err)
	})

	t.Run("rejects non-contiguous sequence orders", func(t *testing.T) {
		_, err := NewRegistry(append([]*Stage{
			{ID: Avaluo, SequenceOrder: 1},
			{ID: RevisionLegal, SequenceOrder: 3},
		}, specials...))
		require.Error(t, err)
	})

	t.Run("rejects a sequence not starting at 1", func(t *testing.T) {
		_, err := NewRegistry(append([]*Stage{
			{ID: Avaluo, SequenceOrder: 2},
			{ID: RevisionLegal, SequenceOrder: 3},
		}, specials...))
		require.Error(t, err)
	})

	t.Run("rejects missing special stages", func(t *testing.T) {
		_, err := NewRegistry([]*Stage{
			{ID: Avaluo, SequenceOrder: 1},
			{ID: RevisionLegal, SequenceOrder: 2},
			{ID: Suspended, Special: true},
		})
		require.Error(t, err)
	})

	t.Run("rejects a special stage with a sequence order", func(t *testing.T) {
		_, err := NewRegistry([]*Stage{
			{ID: Avaluo, SequenceOrder: 1},
			{ID: RevisionLegal, SequenceOrder: 2},
			{ID: Suspended, SequenceOrder: 3, Special: true},
			{ID: Cancelled, Special: true},
		})
		require.Error(t, err)
	})
}
