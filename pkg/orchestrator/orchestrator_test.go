package orchestrator

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/sailmerge/sailmerge/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ruleXML builds a minimal Expression Rule object export with the given
// identity and scripted code.
func ruleXML(uuid, name, versionUUID, code string) string {
	return `<rule uuid="` + uuid + `" name="` + name + `" versionUuid="` + versionUUID + `">` +
		`<code>` + code + `</code></rule>`
}

// writeRulePackage builds a zip package at dir/name.zip with one
// rule/object<N>.xml entry per object, under the recognized "rule" directory.
// Each version uuid is derived from the object's uuid and code, so an object
// keeps its version uuid across packages exactly when its code is unchanged.
func writeRulePackage(t *testing.T, dir, name string, objects map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name+".zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	i := 0
	for uuid, code := range objects {
		i++
		idx := strconv.Itoa(i)
		w, err := zw.Create("rule/object" + idx + ".xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(ruleXML(uuid, "Rule "+idx, "v-"+uuid+"-"+code, code)))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestOrchestrator_RunSuccess(t *testing.T) {
	dir := t.TempDir()

	sharedUUID := "11111111-1111-1111-1111-111111111111"
	newUUID := "22222222-2222-2222-2222-222222222222"
	deletedUUID := "33333333-3333-3333-3333-333333333333"

	basePath := writeRulePackage(t, dir, "base", map[string]string{
		sharedUUID:   "a(1)",
		deletedUUID:  "a(2)",
	})
	customizedPath := writeRulePackage(t, dir, "customized", map[string]string{
		sharedUUID: "a(1) /* customer edit */",
		newUUID:    "a(3)",
	})
	newVendorPath := writeRulePackage(t, dir, "new_vendor", map[string]string{
		sharedUUID: "a(1) /* vendor edit */",
		newUUID:    "a(3)",
	})

	st := store.NewMemStore()
	registry := objectmodel.NewRegistry()
	o := New(st, registry, Config{}, nil, nil)

	sess, err := o.Run(context.Background(), Inputs{
		BasePath:       basePath,
		CustomizedPath: customizedPath,
		NewVendorPath:  newVendorPath,
	})
	require.NoError(t, err)
	assert.Equal(t, core.SessionStatusReady, sess.Status)

	changes, err := st.ListChanges(context.Background(), sess.ID, store.ChangeFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, changes)

	var sawConflict, sawNew, sawDeleted bool
	for _, c := range changes {
		switch c.Classification {
		case core.ClassificationConflict:
			sawConflict = true
		case core.ClassificationNew:
			sawNew = true
		case core.ClassificationDeleted:
			sawDeleted = true
		}
	}
	assert.True(t, sawConflict, "shared object edited by both vendor and customer should conflict")
	assert.True(t, sawNew, "object added by both vendor and customer should be NEW")
	assert.True(t, sawDeleted, "object removed by both vendor and customer should be DELETED")
}

func TestOrchestrator_MissingPackageFailsSession(t *testing.T) {
	dir := t.TempDir()
	customizedPath := writeRulePackage(t, dir, "customized", map[string]string{"u": "a(1)"})
	newVendorPath := writeRulePackage(t, dir, "new_vendor", map[string]string{"u": "a(1)"})

	st := store.NewMemStore()
	registry := objectmodel.NewRegistry()
	o := New(st, registry, Config{}, nil, nil)

	_, err := o.Run(context.Background(), Inputs{
		BasePath:       filepath.Join(dir, "does-not-exist.zip"),
		CustomizedPath: customizedPath,
		NewVendorPath:  newVendorPath,
	})
	require.Error(t, err)

	sessions, err := st.ListSessions(context.Background(), store.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, core.SessionStatusFailed, sessions[0].Status)
	assert.NotEmpty(t, sessions[0].LastError)
}

func TestOrchestrator_RunRespectsCancellation(t *testing.T) {
	st := store.NewMemStore()
	registry := objectmodel.NewRegistry()
	o := New(st, registry, Config{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, Inputs{BasePath: "x", CustomizedPath: "y", NewVendorPath: "z"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCancelled))

	sessions, listErr := st.ListSessions(context.Background(), store.SessionFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, sessions, "cancellation before create_session must not create a session")
}

func TestOrchestrator_StepTimeout(t *testing.T) {
	dir := t.TempDir()
	basePath := writeRulePackage(t, dir, "base", map[string]string{"u": "a(1)"})
	customizedPath := writeRulePackage(t, dir, "customized", map[string]string{"u": "a(1)"})
	newVendorPath := writeRulePackage(t, dir, "new_vendor", map[string]string{"u": "a(1)"})

	st := &slowMarkFailedStore{MemStore: store.NewMemStore(), delay: 50 * time.Millisecond}
	registry := objectmodel.NewRegistry()
	o := New(st, registry, Config{StepTimeout: time.Nanosecond}, nil, nil)

	_, err := o.Run(context.Background(), Inputs{
		BasePath:       basePath,
		CustomizedPath: customizedPath,
		NewVendorPath:  newVendorPath,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCancelled))
}

// slowMarkFailedStore wraps MemStore to add a small delay to MarkFailed so
// TestOrchestrator_StepTimeout exercises the fail() path using a background
// context that must not itself be subject to the expired step timeout.
type slowMarkFailedStore struct {
	*store.MemStore
	delay time.Duration
}

func (s *slowMarkFailedStore) MarkFailed(ctx context.Context, sessionID int64, stepErr error) error {
	time.Sleep(s.delay)
	return s.MemStore.MarkFailed(ctx, sessionID, stepErr)
}
