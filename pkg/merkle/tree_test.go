package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTreeRootIsEmptyHash(t *testing.T) {
	tr := New()
	assert.Equal(t, emptyHash(), tr.RootHash())
}

func TestPutChangesRoot(t *testing.T) {
	tr := New()
	before := tr.RootHash()
	tr.Put([]string{"http_assets", "/hello"}, []byte("body"))
	after := tr.RootHash()
	assert.NotEqual(t, before, after)
}

func TestPutIsIdempotentOnOverwrite(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/hello"}, []byte("body"))
	first := tr.RootHash()
	tr.Put([]string{"http_assets", "/hello"}, []byte("body"))
	assert.Equal(t, first, tr.RootHash())
}

func TestDeleteRestoresEmptyRoot(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/hello"}, []byte("body"))
	tr.Delete([]string{"http_assets", "/hello"})
	assert.Equal(t, emptyHash(), tr.RootHash())
}

func TestRevealNotFound(t *testing.T) {
	tr := New()
	_, err := tr.Reveal([]string{"http_assets", "/missing"}, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWitnessHashMatchesRoot(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/a"}, []byte("A"))
	tr.Put([]string{"http_assets", "/b"}, []byte("B"))
	tr.Put([]string{"http_expr", "c", "<$>"}, []byte("C"))

	root := tr.RootHash()

	w, err := tr.Reveal([]string{"http_assets", "/a"}, true)
	require.NoError(t, err)
	assert.Equal(t, root, w.Hash(), "a witness must hash to the same root as the full tree")

	w2, err := tr.Reveal([]string{"http_expr", "c", "<$>"}, true)
	require.NoError(t, err)
	assert.Equal(t, root, w2.Hash())
}

func TestWitnessRevealsValueOnlyWhenRequested(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/a"}, []byte("A"))

	revealed, err := tr.Reveal([]string{"http_assets", "/a"}, true)
	require.NoError(t, err)
	assert.Equal(t, witnessLeaf, revealed.left.left.kind)

	pruned, err := tr.Reveal([]string{"http_assets", "/a"}, false)
	require.NoError(t, err)
	assert.Equal(t, witnessPruned, pruned.left.left.kind)
}

func TestRevealsMultiPathHashesToRoot(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/a"}, []byte("A"))
	tr.Put([]string{"http_assets", "/b"}, []byte("B"))
	tr.Put([]string{"http_assets", "/c"}, []byte("C"))

	root := tr.RootHash()
	w := tr.Reveals([][]string{
		{"http_assets", "/a"},
		{"http_assets", "/c"},
	}, false)
	assert.Equal(t, root, w.Hash())
}

func TestEncodeWitnessProducesBytes(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/a"}, []byte("A"))
	w, err := tr.Reveal([]string{"http_assets", "/a"}, true)
	require.NoError(t, err)

	encoded, err := EncodeWitness(w)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}

func TestClearTotalViaFreshTree(t *testing.T) {
	tr := New()
	tr.Put([]string{"http_assets", "/a"}, []byte("A"))
	fresh := New()
	assert.Equal(t, fresh.RootHash(), New().RootHash())
	assert.NotEqual(t, tr.RootHash(), fresh.RootHash())
}
