// Package appzip reads an Appian application package export (a ZIP archive)
// and enumerates its object XML files as typed entries, in deterministic
// order, without attempting to decode the XML itself (spec.md §4.1).
package appzip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/sailmerge/sailmerge/pkg/core"
)

// DefaultMaxSizeBytes is the default package size cap (spec.md §6).
const DefaultMaxSizeBytes = 100 * 1024 * 1024

// Entry is one object file found inside a package archive.
type Entry struct {
	ObjectType core.ObjectType
	FileName   string
	XML        []byte
}

// ReadOptions configures Read.
type ReadOptions struct {
	// MaxSizeBytes caps the archive's on-disk size. Zero means
	// DefaultMaxSizeBytes.
	MaxSizeBytes int64
}

// Read opens, validates, and fully enumerates a package archive at path,
// tagged with slot for error messages (spec.md §7: "Base Package (A)" etc).
// Any error is fatal for the owning package — callers must not treat a
// partial Entry list as usable.
func Read(path_ string, slot core.PackageSlot, opts ReadOptions) ([]Entry, error) {
	maxSize := opts.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeBytes
	}

	info, err := os.Stat(path_)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewPackageValidationError(slot, core.ReasonFileNotFound, path_)
		}
		return nil, core.NewPackageValidationError(slot, core.ReasonFileNotFound, err.Error())
	}

	if info.Size() > maxSize {
		return nil, core.NewPackageValidationError(slot, core.ReasonTooLarge,
			fmt.Sprintf("%d bytes exceeds cap of %d bytes", info.Size(), maxSize))
	}

	zr, err := zip.OpenReader(path_)
	if err != nil {
		if err == zip.ErrFormat {
			return nil, core.NewPackageValidationError(slot, core.ReasonNotZip, err.Error())
		}
		return nil, core.NewPackageValidationError(slot, core.ReasonCorrupt, err.Error())
	}
	defer zr.Close()

	entries, err := readEntries(&zr.Reader, slot)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func readEntries(zr *zip.Reader, slot core.PackageSlot) ([]Entry, error) {
	type rawFile struct {
		dir  string
		name string
		f    *zip.File
	}
	var files []rawFile
	seenAppianDir := false

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		dir := topLevelDir(f.Name)
		if _, ok := knownDirs[dir]; ok {
			seenAppianDir = true
		}
		files = append(files, rawFile{dir: dir, name: f.Name, f: f})
	}

	if len(files) == 0 {
		return nil, core.NewPackageValidationError(slot, core.ReasonNoXML, "archive contains no .xml object files")
	}
	if !seenAppianDir {
		return nil, core.NewPackageValidationError(slot, core.ReasonMissingAppianDirs,
			"no recognized Appian object-type directory found in archive")
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].dir != files[j].dir {
			return files[i].dir < files[j].dir
		}
		return files[i].name < files[j].name
	})

	entries := make([]Entry, 0, len(files))
	for _, rf := range files {
		rc, err := rf.f.Open()
		if err != nil {
			return nil, core.NewPackageValidationError(slot, core.ReasonCorrupt,
				fmt.Sprintf("failed to open %s: %v", rf.name, err))
		}
		data, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return nil, core.NewPackageValidationError(slot, core.ReasonCorrupt,
				fmt.Sprintf("failed to read %s: %v", rf.name, err))
		}
		if closeErr != nil {
			return nil, core.NewPackageValidationError(slot, core.ReasonCorrupt,
				fmt.Sprintf("failed to close %s: %v", rf.name, closeErr))
		}
		entries = append(entries, Entry{
			ObjectType: core.ObjectTypeForDir(rf.dir),
			FileName:   rf.name,
			XML:        data,
		})
	}
	return entries, nil
}

var knownDirs = map[string]struct{}{
	"interface": {}, "rule": {}, "processModel": {}, "recordType": {},
	"cdt": {}, "constant": {}, "site": {}, "group": {},
	"integration": {}, "webApi": {}, "connectedSystem": {}, "dataStore": {},
}

func topLevelDir(name string) string {
	name = strings.TrimPrefix(path.Clean(name), "/")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}
