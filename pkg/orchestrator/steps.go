package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sailmerge/sailmerge/pkg/appzip"
	"github.com/sailmerge/sailmerge/pkg/canonical"
	"github.com/sailmerge/sailmerge/pkg/classify"
	"github.com/sailmerge/sailmerge/pkg/compare"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/depgraph"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/sailmerge/sailmerge/pkg/sail"
	"github.com/sailmerge/sailmerge/pkg/store"
)

// packageJob names one of the three input packages to read and parse.
type packageJob struct {
	role core.PackageRole
	slot core.PackageSlot
	path string
}

// packageOutcome is one packageJob's result: its PackageIndex plus a
// parsed-object count by type, for the Reporter.
type packageOutcome struct {
	role         core.PackageRole
	index        compare.PackageIndex
	countsByType map[core.ObjectType]int
	err          error
}

// readResult is the aggregated outcome of the parallel read/parse/populate
// block (steps 2–4).
type readResult struct {
	indices map[core.PackageRole]compare.PackageIndex
	err     error
}

// readAndParse reads and parses the three input packages concurrently,
// registering every object it sees in the shared registry (steps 2–4:
// read, parse, populate lookup — fused per package since each package's
// objects must be read and registered together before the next package can
// safely resolve cross-package uuid references during formatSAIL).
//
// Grounded on the teacher's pkg/agent/orchestrator.SubAgentRunner: a
// per-job result channel sized to the number of concurrent jobs, and a
// single-slot aggregate channel so the caller can race the whole block
// against its step timeout without blocking on stragglers.
func (o *Orchestrator) readAndParse(ctx context.Context, in Inputs, log *slog.Logger) (map[core.PackageRole]compare.PackageIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.ErrCancelled
	}
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.stepTimeout())
	defer cancel()

	jobs := []packageJob{
		{core.RoleBase, core.SlotBase, in.BasePath},
		{core.RoleCustomized, core.SlotCustomized, in.CustomizedPath},
		{core.RoleNewVendor, core.SlotNewVendor, in.NewVendorPath},
	}

	done := make(chan readResult, 1)
	go func() {
		results := make(chan packageOutcome, len(jobs))
		for _, j := range jobs {
			j := j
			go func() {
				results <- o.readAndParseOne(j)
			}()
		}

		indices := make(map[core.PackageRole]compare.PackageIndex, len(jobs))
		totalCounts := make(map[core.ObjectType]int)
		var firstErr error
		for i := 0; i < len(jobs); i++ {
			r := <-results
			if r.err != nil {
				if firstErr == nil {
					firstErr = r.err
				}
				continue
			}
			indices[r.role] = r.index
			for t, n := range r.countsByType {
				totalCounts[t] += n
			}
		}
		if firstErr != nil {
			done <- readResult{err: firstErr}
			return
		}

		for t, n := range totalCounts {
			o.reporter.IncObjects(string(t), n)
		}
		totalObjects := 0
		for _, n := range totalCounts {
			totalObjects += n
		}
		log.Info("step complete", "step_index", 2, "total_steps", totalSteps, "step", "read_packages", "packages", len(jobs))
		log.Info("step complete", "step_index", 3, "total_steps", totalSteps, "step", "parse_objects", "objects", totalObjects)
		log.Info("step complete", "step_index", 4, "total_steps", totalSteps, "step", "populate_lookup", "registry_size", len(o.registry.All()))
		done <- readResult{indices: indices}
	}()

	select {
	case r := <-done:
		return r.indices, r.err
	case <-stepCtx.Done():
		return nil, core.ErrCancelled
	}
}

// readAndParseOne reads j's package, parses every entry, and registers each
// parsed object in the shared registry. Per-object parse failures are
// logged and recorded as Unknown by objectmodel.Parse itself (spec.md
// §4.2); only a package-level failure (missing, oversized, not a zip,
// corrupt, no recognized objects, or no entry that parses) is returned here.
func (o *Orchestrator) readAndParseOne(j packageJob) packageOutcome {
	opts := appzip.ReadOptions{MaxSizeBytes: o.cfg.MaxPackageSizeBytes}
	entries, err := appzip.Read(j.path, j.slot, opts)
	if err != nil {
		return packageOutcome{role: j.role, err: err}
	}

	idx := compare.PackageIndex{
		Versions: make(map[string]objectmodel.Version, len(entries)),
		Types:    make(map[string]core.ObjectType, len(entries)),
		Names:    make(map[string]string, len(entries)),
	}
	counts := make(map[core.ObjectType]int, len(entries))
	parseFailures := 0

	for _, entry := range entries {
		parsed, warn := objectmodel.Parse(entry, j.role)
		if warn != nil {
			parseFailures++
			o.logger.Warn("object parse failure", "package", j.slot, "file", warn.FileName, "error", warn.Err)
		}
		obj := o.registry.GetOrInsert(parsed.UUID, parsed.Name, parsed.ObjectType)
		idx.Versions[parsed.UUID] = parsed.Version
		idx.Types[parsed.UUID] = obj.ObjectType
		idx.Names[parsed.UUID] = obj.DisplayName
		counts[parsed.ObjectType]++
	}
	if len(entries) > 0 && parseFailures == len(entries) {
		return packageOutcome{role: j.role, err: fmt.Errorf("%s: no parseable objects: %w", j.slot, core.ErrParseFailure)}
	}

	return packageOutcome{role: j.role, index: idx, countsByType: counts}
}

// formatSAIL rewrites every scripted object version's code in-place through
// the SAIL Formatter, resolving uuid references against the registry now
// that every package's objects have been registered (spec.md §4.3: the
// formatter "reads lookup across all three packages").
func (o *Orchestrator) formatSAIL(idx compare.PackageIndex) {
	for uuid, v := range idx.Versions {
		if v.ScriptedCode == "" {
			continue
		}
		v.ScriptedCode = sail.Format(v.ScriptedCode, o.registry)
		idx.Versions[uuid] = v
	}
}

// collectVersions flattens one package's PackageIndex into the
// store.VersionInput rows PersistAnalysis needs, view included so the store
// never has to recompute the Content Canonicalizer's output. Each version's
// Fingerprint is computed here, over that same view, so the persisted
// content fingerprint (spec.md §3) is never left at its zero value.
func collectVersions(role core.PackageRole, idx compare.PackageIndex) ([]store.VersionInput, error) {
	out := make([]store.VersionInput, 0, len(idx.Versions))
	for uuid, v := range idx.Versions {
		t := idx.Types[uuid]
		view := canonical.Build(t, v)
		fp, err := compare.Fingerprint(view)
		if err != nil {
			return nil, err
		}
		v.Fingerprint = fp
		out = append(out, store.VersionInput{
			ObjectUUID:  uuid,
			ObjectName:  idx.Names[uuid],
			ObjectType:  t,
			PackageRole: role,
			Version:     v,
			View:        view,
		})
	}
	return out, nil
}

// deltaLabeled is one named Delta Engine run's result.
type deltaLabeled struct {
	label   string
	records []compare.Record
	err     error
}

// compareDeltas runs the vendor (A→C) and customer (A→B) Delta Engine
// comparisons concurrently (spec.md §4.12 steps 6–7).
func (o *Orchestrator) compareDeltas(ctx context.Context, base, customized, newVendor compare.PackageIndex, log *slog.Logger) (deltaPair, error) {
	if err := ctx.Err(); err != nil {
		return deltaPair{}, core.ErrCancelled
	}
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.stepTimeout())
	defer cancel()

	stepIndex := map[string]int{"compare_a_to_c": 6, "compare_a_to_b": 7}

	done := make(chan deltaPair, 1)
	doneErr := make(chan error, 1)
	go func() {
		results := make(chan deltaLabeled, 2)
		go func() {
			records, err := compare.Delta(base, newVendor)
			results <- deltaLabeled{label: "compare_a_to_c", records: records, err: err}
		}()
		go func() {
			records, err := compare.Delta(base, customized)
			results <- deltaLabeled{label: "compare_a_to_b", records: records, err: err}
		}()

		var vendor, customer []compare.Record
		var firstErr error
		for i := 0; i < 2; i++ {
			r := <-results
			if r.err != nil {
				if firstErr == nil {
					firstErr = r.err
				}
				continue
			}
			switch r.label {
			case "compare_a_to_c":
				vendor = r.records
			case "compare_a_to_b":
				customer = r.records
			}
			log.Info("step complete", "step_index", stepIndex[r.label], "total_steps", totalSteps, "step", r.label, "records", len(r.records))
		}
		if firstErr != nil {
			doneErr <- firstErr
			return
		}
		done <- deltaPair{vendor: vendor, customer: customer}
	}()

	select {
	case p := <-done:
		return p, nil
	case err := <-doneErr:
		return deltaPair{}, err
	case <-stepCtx.Done():
		return deltaPair{}, core.ErrCancelled
	}
}

// buildDependencyGraph collects every object uuid seen across the three
// packages and its uuid-reference edges, for the Dependency Analyzer
// (spec.md §4.8). Each uuid's content is taken from its most current
// available version — new-vendor, then customized, then base — since that
// is the version a CONFLICT reviewer would actually be looking at.
func (o *Orchestrator) buildDependencyGraph(changes []classify.Change, base, customized, newVendor compare.PackageIndex) ([]depgraph.Node, map[string][]string) {
	known := make(map[string]struct{})
	typeOf := make(map[string]core.ObjectType)
	nameOf := make(map[string]string)
	versionOf := make(map[string]objectmodel.Version)

	collect := func(idx compare.PackageIndex) {
		for uuid, v := range idx.Versions {
			known[uuid] = struct{}{}
			typeOf[uuid] = idx.Types[uuid]
			nameOf[uuid] = idx.Names[uuid]
			versionOf[uuid] = v
		}
	}
	collect(base)
	collect(customized)
	collect(newVendor)

	nodes := make([]depgraph.Node, 0, len(known))
	contentByUUID := make(map[string]string, len(known))
	for uuid := range known {
		t := typeOf[uuid]
		nodes = append(nodes, depgraph.Node{UUID: uuid, Type: t, Name: nameOf[uuid]})
		contentByUUID[uuid] = depgraph.ContentForScan(canonical.Build(t, versionOf[uuid]))
	}

	return nodes, depgraph.BuildAdjacency(contentByUUID, known)
}
