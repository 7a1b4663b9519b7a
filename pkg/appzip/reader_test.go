package appzip

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "package.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return zipPath
}

func TestRead_HappyPath(t *testing.T) {
	p := writeZip(t, map[string]string{
		"rule/b_first.xml":       "<rule/>",
		"rule/a_second.xml":      "<rule/>",
		"interface/x.xml":        "<interface/>",
		"recordType/y.xml":       "<recordType/>",
		"notanxmlfile.txt":       "ignored",
		"weirdDir/thing.xml":     "<weird/>",
	})

	entries, err := Read(p, core.SlotBase, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// deterministic order: sorted by (dir, filename)
	assert.Equal(t, "interface/x.xml", entries[0].FileName)
	assert.Equal(t, core.ObjectTypeInterface, entries[0].ObjectType)
	assert.Equal(t, "recordType/y.xml", entries[1].FileName)
	assert.Equal(t, "rule/a_second.xml", entries[2].FileName)
	assert.Equal(t, "rule/b_first.xml", entries[3].FileName)
	assert.Equal(t, core.ObjectTypeExpressionRule, entries[3].ObjectType)
	assert.Equal(t, "weirdDir/thing.xml", entries[4].FileName)
}

func TestRead_UnknownDirectoryYieldsUnknownType(t *testing.T) {
	p := writeZip(t, map[string]string{
		"rule/a.xml":      "<rule/>",
		"weirdDir/b.xml":  "<weird/>",
	})

	entries, err := Read(p, core.SlotBase, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var found bool
	for _, e := range entries {
		if e.FileName == "weirdDir/b.xml" {
			found = true
			assert.Equal(t, core.ObjectTypeUnknown, e.ObjectType)
		}
	}
	assert.True(t, found)
}

func TestRead_FileNotFound(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.zip"), core.SlotCustomized, ReadOptions{})
	require.Error(t, err)
	var pve *core.PackageValidationError
	require.True(t, errors.As(err, &pve))
	assert.Equal(t, core.ReasonFileNotFound, pve.Reason)
	assert.Equal(t, core.SlotCustomized, pve.Slot)
	assert.True(t, errors.Is(err, core.ErrPackageValidation))
}

func TestRead_NotZip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notazip.zip")
	require.NoError(t, os.WriteFile(p, []byte("hello, not a zip"), 0o644))

	_, err := Read(p, core.SlotNewVendor, ReadOptions{})
	require.Error(t, err)
	var pve *core.PackageValidationError
	require.True(t, errors.As(err, &pve))
	assert.Equal(t, core.ReasonNotZip, pve.Reason)
}

func TestRead_TooLarge(t *testing.T) {
	p := writeZip(t, map[string]string{"rule/a.xml": "<rule/>"})

	_, err := Read(p, core.SlotBase, ReadOptions{MaxSizeBytes: 1})
	require.Error(t, err)
	var pve *core.PackageValidationError
	require.True(t, errors.As(err, &pve))
	assert.Equal(t, core.ReasonTooLarge, pve.Reason)
}

func TestRead_NoXML(t *testing.T) {
	p := writeZip(t, map[string]string{"rule/readme.txt": "not xml"})

	_, err := Read(p, core.SlotBase, ReadOptions{})
	require.Error(t, err)
	var pve *core.PackageValidationError
	require.True(t, errors.As(err, &pve))
	assert.Equal(t, core.ReasonNoXML, pve.Reason)
}

func TestRead_MissingAppianDirs(t *testing.T) {
	p := writeZip(t, map[string]string{"random/file.xml": "<x/>"})

	_, err := Read(p, core.SlotBase, ReadOptions{})
	require.Error(t, err)
	var pve *core.PackageValidationError
	require.True(t, errors.As(err, &pve))
	assert.Equal(t, core.ReasonMissingAppianDirs, pve.Reason)
}

func TestRead_DeterministicOrderAcrossRuns(t *testing.T) {
	files := map[string]string{
		"rule/c.xml": "<rule/>",
		"rule/a.xml": "<rule/>",
		"rule/b.xml": "<rule/>",
	}
	p := writeZip(t, files)

	first, err := Read(p, core.SlotBase, ReadOptions{})
	require.NoError(t, err)
	second, err := Read(p, core.SlotBase, ReadOptions{})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].FileName, second[i].FileName)
	}
}

func TestTopLevelDir(t *testing.T) {
	assert.Equal(t, "rule", topLevelDir("rule/a.xml"))
	assert.Equal(t, "rule", topLevelDir("/rule/a.xml"))
	assert.Equal(t, "", topLevelDir("a.xml"))
}
