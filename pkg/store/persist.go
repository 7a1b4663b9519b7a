package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sailmerge/sailmerge/pkg/compare"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/sailmerge/sailmerge/pkg/review"
)

// PersistAnalysis writes the full output of one orchestrator run in a single
// transaction: either the session ends up ready with every row committed, or
// the transaction rolls back and the caller is expected to call MarkFailed
// (spec.md §4.11: "Either the session is left ready with a full payload, or
// the session is left failed with an error log and no partial analysis
// rows").
func (s *Store) PersistAnalysis(ctx context.Context, sessionID int64, result AnalysisResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: persist analysis: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertObjects(ctx, tx, result.Objects); err != nil {
		return err
	}

	packageIDs, err := insertPackages(ctx, tx, sessionID, result.Packages)
	if err != nil {
		return err
	}

	if err := insertVersions(ctx, tx, sessionID, packageIDs, result.Versions); err != nil {
		return err
	}

	if err := insertDeltaResults(ctx, tx, sessionID, "vendor", result.VendorDelta); err != nil {
		return err
	}
	if err := insertDeltaResults(ctx, tx, sessionID, "customer", result.CustomerDelta); err != nil {
		return err
	}

	if err := insertChanges(ctx, tx, sessionID, result.Changes); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET status = $1, updated_at = now() WHERE id = $2`,
		core.SessionStatusReady, sessionID); err != nil {
		return translateWriteError(err, "store: persist analysis: finalize session")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: persist analysis: commit: %w", err)
	}
	return nil
}

func upsertObjects(ctx context.Context, tx pgx.Tx, objects []*objectmodel.Object) error {
	for _, obj := range objects {
		_, err := tx.Exec(ctx, `
			INSERT INTO objects (uuid, display_name, object_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (uuid) DO NOTHING
		`, obj.UUID, obj.DisplayName, obj.ObjectType)
		if err != nil {
			return translateWriteError(err, "store: upsert object "+obj.UUID)
		}
	}
	return nil
}

func insertPackages(ctx context.Context, tx pgx.Tx, sessionID int64, packages []PackageInput) (map[core.PackageRole]int64, error) {
	ids := make(map[core.PackageRole]int64, len(packages))
	for _, p := range packages {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO packages (session_id, role, filename)
			VALUES ($1, $2, $3)
			RETURNING id
		`, sessionID, p.Role, p.Filename).Scan(&id)
		if err != nil {
			return nil, translateWriteError(err, "store: insert package "+string(p.Role))
		}
		ids[p.Role] = id
	}
	return ids, nil
}

func insertVersions(ctx context.Context, tx pgx.Tx, sessionID int64, packageIDs map[core.PackageRole]int64, versions []VersionInput) error {
	for _, v := range versions {
		packageID, ok := packageIDs[v.PackageRole]
		if !ok {
			return fmt.Errorf("store: insert version %s: no package row for role %s", v.ObjectUUID, v.PackageRole)
		}
		fingerprint := v.Version.Fingerprint[:]
		_, err := tx.Exec(ctx, `
			INSERT INTO object_versions
				(session_id, package_id, object_uuid, version_uuid, scripted_code, fields, properties, deprecated, raw_xml, fingerprint)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10)
		`, sessionID, packageID, v.ObjectUUID, v.Version.VersionUUID, v.Version.ScriptedCode,
			toJSON(v.Version.Fields), toJSON(v.Version.Properties), v.Version.Deprecated, v.Version.RawXML, fingerprint)
		if err != nil {
			return translateWriteError(err, "store: insert version "+v.ObjectUUID)
		}
	}
	return nil
}

func insertDeltaResults(ctx context.Context, tx pgx.Tx, sessionID int64, side string, records []compare.Record) error {
	for _, r := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO delta_results
				(session_id, side, object_uuid, object_type, object_name, kind, old_version_uuid, new_version_uuid, summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, sessionID, side, r.ObjectUUID, r.ObjectType, r.ObjectName, r.Kind, r.OldVersionUUID, r.NewVersionUUID, r.Summary)
		if err != nil {
			return translateWriteError(err, "store: insert "+side+" delta record "+r.ObjectUUID)
		}
	}
	return nil
}

func insertChanges(ctx context.Context, tx pgx.Tx, sessionID int64, changes []review.OrderedChange) error {
	for _, c := range changes {
		_, err := tx.Exec(ctx, `
			INSERT INTO changes
				(session_id, object_uuid, object_type, object_name, classification, vendor_kind, customer_kind, review_status, order_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, sessionID, c.ObjectUUID, c.ObjectType, c.ObjectName, c.Classification,
			changeKindPtr(c.VendorKind), changeKindPtr(c.CustomerKind), core.ReviewStatusPending, c.OrderIndex)
		if err != nil {
			return translateWriteError(err, "store: insert change "+c.ObjectUUID)
		}
	}
	return nil
}

// changeKindPtr converts a possibly-nil *core.ChangeKind into the form pgx
// accepts for a nullable text column (pgx handles *string natively, not
// *core.ChangeKind).
func changeKindPtr(k *core.ChangeKind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}
