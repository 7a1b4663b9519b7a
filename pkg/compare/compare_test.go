package compare

import (
	"testing"

	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparePair_SameVersionUUID_Unchanged(t *testing.T) {
	v := objectmodel.Version{VersionUUID: "v-1", ScriptedCode: "a!x()"}
	outcome, err := ComparePair(core.ObjectTypeInterface, v, v)
	require.NoError(t, err)
	assert.True(t, outcome.Unchanged)
}

func TestComparePair_DifferentVersionUUID_SameContent_ModifiedWithSameFingerprint(t *testing.T) {
	old := objectmodel.Version{VersionUUID: "v-1", ScriptedCode: "a!x()", Fields: map[string]any{"parameters": []map[string]any{}}, Properties: map[string]any{"security": "expr!true"}}
	new := objectmodel.Version{VersionUUID: "v-2", ScriptedCode: "a!x()", Fields: map[string]any{"parameters": []map[string]any{}}, Properties: map[string]any{"security": "expr!true"}}

	outcome, err := ComparePair(core.ObjectTypeInterface, old, new)
	require.NoError(t, err)
	assert.False(t, outcome.Unchanged)
	assert.True(t, outcome.SameFingerprint)
}

func TestComparePair_DifferentContent_Modified(t *testing.T) {
	old := objectmodel.Version{VersionUUID: "v-1", ScriptedCode: "a!x()", Fields: map[string]any{"parameters": []map[string]any{}}}
	new := objectmodel.Version{VersionUUID: "v-2", ScriptedCode: "a!y()", Fields: map[string]any{"parameters": []map[string]any{}}}

	outcome, err := ComparePair(core.ObjectTypeInterface, old, new)
	require.NoError(t, err)
	assert.False(t, outcome.Unchanged)
	assert.False(t, outcome.SameFingerprint)
}

func idx(versions map[string]objectmodel.Version, types map[string]core.ObjectType, names map[string]string) PackageIndex {
	return PackageIndex{Versions: versions, Types: types, Names: names}
}

func TestDelta_NewRemovedModified(t *testing.T) {
	old := idx(
		map[string]objectmodel.Version{
			"u-removed":  {VersionUUID: "v-1"},
			"u-modified": {VersionUUID: "v-1", ScriptedCode: "a!x()"},
			"u-same":     {VersionUUID: "v-1", ScriptedCode: "a!same()"},
		},
		map[string]core.ObjectType{"u-removed": core.ObjectTypeConstant, "u-modified": core.ObjectTypeInterface, "u-same": core.ObjectTypeInterface},
		map[string]string{"u-removed": "Removed", "u-modified": "Modified", "u-same": "Same"},
	)
	new := idx(
		map[string]objectmodel.Version{
			"u-new":      {VersionUUID: "v-1"},
			"u-modified": {VersionUUID: "v-2", ScriptedCode: "a!z()"},
			"u-same":     {VersionUUID: "v-1", ScriptedCode: "a!same()"},
		},
		map[string]core.ObjectType{"u-new": core.ObjectTypeConstant, "u-modified": core.ObjectTypeInterface, "u-same": core.ObjectTypeInterface},
		map[string]string{"u-new": "New", "u-modified": "Modified", "u-same": "Same"},
	)

	records, err := Delta(old, new)
	require.NoError(t, err)

	byUUID := map[string]core.ChangeKind{}
	for _, r := range records {
		byUUID[r.ObjectUUID] = r.Kind
	}
	assert.Equal(t, core.ChangeKindNew, byUUID["u-new"])
	assert.Equal(t, core.ChangeKindRemoved, byUUID["u-removed"])
	assert.Equal(t, core.ChangeKindModified, byUUID["u-modified"])
	_, stillThere := byUUID["u-same"]
	assert.False(t, stillThere, "UNCHANGED pairs must not be emitted")
	assert.Len(t, records, 3)
}

func TestDelta_RemovedWithDeprecatedFlag(t *testing.T) {
	old := idx(
		map[string]objectmodel.Version{"u-1": {VersionUUID: "v-1", Deprecated: true}},
		map[string]core.ObjectType{"u-1": core.ObjectTypeExpressionRule},
		map[string]string{"u-1": "old_rule"},
	)
	new := idx(map[string]objectmodel.Version{}, map[string]core.ObjectType{}, map[string]string{})

	records, err := Delta(old, new)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.ChangeKindDeprecated, records[0].Kind)
}

func TestDelta_DeterministicOrderByTypeThenName(t *testing.T) {
	old := idx(map[string]objectmodel.Version{}, map[string]core.ObjectType{}, map[string]string{})
	new := idx(
		map[string]objectmodel.Version{
			"u-1": {}, "u-2": {}, "u-3": {},
		},
		map[string]core.ObjectType{"u-1": core.ObjectTypeConstant, "u-2": core.ObjectTypeConstant, "u-3": core.ObjectTypeCDT},
		map[string]string{"u-1": "zeta", "u-2": "alpha", "u-3": "anything"},
	)

	records, err := Delta(old, new)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, core.ObjectTypeCDT, records[0].ObjectType)
	assert.Equal(t, "alpha", records[1].ObjectName)
	assert.Equal(t, "zeta", records[2].ObjectName)
}

func TestDelta_Symmetry_SwappingOldAndNewSwapsNewAndRemoved(t *testing.T) {
	a := idx(
		map[string]objectmodel.Version{"u-1": {VersionUUID: "v-1"}},
		map[string]core.ObjectType{"u-1": core.ObjectTypeConstant},
		map[string]string{"u-1": "only_in_a"},
	)
	b := idx(map[string]objectmodel.Version{}, map[string]core.ObjectType{}, map[string]string{})

	forward, err := Delta(a, b)
	require.NoError(t, err)
	backward, err := Delta(b, a)
	require.NoError(t, err)

	require.Len(t, forward, 1)
	require.Len(t, backward, 1)
	assert.Equal(t, core.ChangeKindRemoved, forward[0].Kind)
	assert.Equal(t, core.ChangeKindNew, backward[0].Kind)
}
