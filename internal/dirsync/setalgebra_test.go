package dirsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDeletesStrictMode(t *testing.T) {
	source := ResourceSet{"a": "", "b": ""}
	target := ResourceSet{"a": "", "b": "", "c": ""}

	assert.Equal(t, []string{"c"}, ComputeDeletes(source, target, false))
}

func TestComputeDeletesKeepMissingSuppressesAll(t *testing.T) {
	source := ResourceSet{"a": ""}
	target := ResourceSet{"a": "", "b": ""}

	assert.Empty(t, ComputeDeletes(source, target, true))
}

func TestComputeTransfersStrictMode(t *testing.T) {
	source := ResourceSet{"a": "ref1", "b": "ref2"}
	target := ResourceSet{"a": "ref1"}

	assert.Equal(t, []string{"b"}, ComputeTransfers(source, target, false))
}

func TestComputeTransfersStrictModeDifferingReferenceTransfers(t *testing.T) {
	source := ResourceSet{"a": "ref-new"}
	target := ResourceSet{"a": "ref-old"}

	assert.Equal(t, []string{"a"}, ComputeTransfers(source, target, false))
}

func TestComputeTransfersKeepUpdatedOnlyNewerNumericWins(t *testing.T) {
	source := ResourceSet{"a": "200", "b": "100", "c": "50"}
	target := ResourceSet{"a": "100", "b": "100"}

	assert.Equal(t, []string{"a", "c"}, ComputeTransfers(source, target, true))
}

func TestComputeTransfersKeepUpdatedSkipsNonNumericTies(t *testing.T) {
	source := ResourceSet{"a": "etag-1"}
	target := ResourceSet{"a": "etag-2"}

	assert.Empty(t, ComputeTransfers(source, target, true))
}

func TestSyncSetAlgebraS5Scenario(t *testing.T) {
	local := ResourceSet{"a": "", "b": ""}
	remote := ResourceSet{"a": "", "b": "", "c": ""}

	assert.Empty(t, ComputeTransfers(local, remote, false))
	assert.Equal(t, []string{"c"}, ComputeDeletes(local, remote, false))
}

func TestSyncSetAlgebraS6KeepMissingScenario(t *testing.T) {
	local := ResourceSet{"a": "", "b": ""}
	remote := ResourceSet{"a": "", "b": "", "c": ""}

	assert.Empty(t, ComputeTransfers(local, remote, false))
	assert.Empty(t, ComputeDeletes(local, remote, true))
}
