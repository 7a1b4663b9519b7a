package orchestrator

import (
	"testing"

	"github.com/sailmerge/sailmerge/pkg/compare"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCollectVersions_PopulatesFingerprint guards against the content
// fingerprint being silently left at its zero value: every VersionInput
// collectVersions produces must carry the same digest compare.Fingerprint
// would compute over its own View.
func TestCollectVersions_PopulatesFingerprint(t *testing.T) {
	uuid := "11111111-1111-1111-1111-111111111111"
	idx := compare.PackageIndex{
		Versions: map[string]objectmodel.Version{
			uuid: {ObjectUUID: uuid, ScriptedCode: "a(1)"},
		},
		Types: map[string]core.ObjectType{uuid: core.ObjectTypeExpressionRule},
		Names: map[string]string{uuid: "Rule One"},
	}

	versions, err := collectVersions(core.RoleBase, idx)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	var zero [32]byte
	assert.NotEqual(t, zero, versions[0].Version.Fingerprint, "fingerprint must not be left at its zero value")

	want, err := compare.Fingerprint(versions[0].View)
	require.NoError(t, err)
	assert.Equal(t, want, versions[0].Version.Fingerprint)
}
