package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// RoleReplicator converges the slave's access roles, rebuilding each
// role's per-stage permission matrix against the slave's own pipeline and
// stage IDs.
type RoleReplicator struct {
	cfg    Config
	logger zerolog.Logger
}

func NewRoleReplicator(cfg Config, logger zerolog.Logger) *RoleReplicator {
	return &RoleReplicator{cfg: cfg, logger: logger.With().Str("phase", "roles").Logger()}
}

// Sync reconciles roles by name. Persisted pipeline and stage mappings are
// re-read first so a roles-only run after an earlier pipeline sync still
// translates status rights.
func (r *RoleReplicator) Sync(ctx context.Context, slave API, snap *Snapshot, m *Mappings, progress ProgressFunc) (*PhaseResult, error) {
	if err := m.Load(ctx); err != nil {
		return nil, err
	}

	slaveRoles, err := slave.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list slave roles: %w", err)
	}
	slaveByName := make(map[string]kommo.Role, len(slaveRoles))
	for _, role := range slaveRoles {
		slaveByName[role.Name] = role
	}

	res := &PhaseResult{}
	batch := RunBatches(ctx, snap.Roles, r.cfg.batchSize(), r.cfg.batchDelay(), progress, func(ctx context.Context, role kommo.Role) error {
		payload := kommo.Role{Name: role.Name, Rights: r.translateRights(role, m, res)}

		existing, ok := slaveByName[role.Name]
		if !ok {
			created, err := r.writeRole(ctx, slave, nil, payload, res)
			if err != nil {
				return fmt.Errorf("failed to create role %q: %w", role.Name, err)
			}
			if err := m.UpsertRole(ctx, role.ID, created.ID); err != nil {
				return err
			}
			res.Created++
			return nil
		}

		if err := m.UpsertRole(ctx, role.ID, existing.ID); err != nil {
			return err
		}
		if rightsEqual(payload.Rights, existing.Rights) {
			return nil
		}
		if _, err := r.writeRole(ctx, slave, &existing.ID, payload, res); err != nil {
			return fmt.Errorf("failed to update role %q: %w", role.Name, err)
		}
		res.Updated++
		return nil
	})
	res.Errors = append(res.Errors, batch.Errors...)

	if r.cfg.DeleteExtraRoles {
		masterNames := make(map[string]struct{}, len(snap.Roles))
		for _, role := range snap.Roles {
			masterNames[role.Name] = struct{}{}
		}
		for _, role := range slaveRoles {
			if ctx.Err() != nil {
				break
			}
			if _, ok := masterNames[role.Name]; ok {
				continue
			}
			if err := slave.DeleteRole(ctx, role.ID); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("failed to delete role %q: %w", role.Name, err))
				continue
			}
			res.Deleted++
		}
	}

	return res, nil
}

// translateRights copies entity permissions and flags verbatim and rebuilds
// status_rights with translated IDs. Entries that reference system stages
// are dropped silently; entries with missing mappings are dropped with a
// warning. Neither is fatal to the role.
func (r *RoleReplicator) translateRights(role kommo.Role, m *Mappings, res *PhaseResult) kommo.Rights {
	rights := kommo.Rights{
		Leads:         role.Rights.Leads,
		Contacts:      role.Rights.Contacts,
		Companies:     role.Rights.Companies,
		Tasks:         role.Rights.Tasks,
		MailAccess:    role.Rights.MailAccess,
		CatalogAccess: role.Rights.CatalogAccess,
		FilesAccess:   role.Rights.FilesAccess,
		StatusRights:  make([]kommo.StatusRight, 0, len(role.Rights.StatusRights)),
	}

	for _, sr := range role.Rights.StatusRights {
		if IsSystemStageID(sr.StatusID) {
			continue
		}
		slavePipelineID, okP := m.Pipeline(sr.PipelineID)
		slaveStatusID, okS := m.Stage(sr.StatusID)
		if !okP || !okS {
			r.logger.Warn().
				Str("role", role.Name).
				Int64("pipeline_id", sr.PipelineID).
				Int64("status_id", sr.StatusID).
				Msg("status right dropped, mapping missing")
			res.Warnings++
			continue
		}
		rights.StatusRights = append(rights.StatusRights, kommo.StatusRight{
			EntityType: sr.EntityType,
			PipelineID: slavePipelineID,
			StatusID:   slaveStatusID,
			Rights:     sr.Rights,
		})
	}
	return rights
}

// writeRole creates or patches a role, retrying once with empty
// status_rights when the API rejects them with a validation error.
func (r *RoleReplicator) writeRole(ctx context.Context, slave API, existingID *int64, payload kommo.Role, res *PhaseResult) (*kommo.Role, error) {
	send := func(p kommo.Role) (*kommo.Role, error) {
		if existingID != nil {
			return slave.UpdateRole(ctx, *existingID, p)
		}
		return slave.CreateRole(ctx, p)
	}

	out, err := send(payload)
	if err != nil && len(payload.Rights.StatusRights) > 0 && isStatusRightsRejection(err) {
		r.logger.Warn().Str("role", payload.Name).Msg("role rejected over status_rights, retrying without them")
		res.Warnings++
		payload.Rights.StatusRights = []kommo.StatusRight{}
		out, err = send(payload)
	}
	return out, err
}

func isStatusRightsRejection(err error) bool {
	var te *kommo.TransportError
	if !errors.As(err, &te) || te.Status != 400 {
		return false
	}
	body := strings.ToLower(te.Body)
	return strings.Contains(body, "status_rights") || strings.Contains(body, "validation")
}

func rightsEqual(want, have kommo.Rights) bool {
	if !entityRightsEqual(want.Leads, have.Leads) ||
		!entityRightsEqual(want.Contacts, have.Contacts) ||
		!entityRightsEqual(want.Companies, have.Companies) ||
		!entityRightsEqual(want.Tasks, have.Tasks) {
		return false
	}
	if !boolPtrEqual(want.MailAccess, have.MailAccess) ||
		!boolPtrEqual(want.CatalogAccess, have.CatalogAccess) ||
		!boolPtrEqual(want.FilesAccess, have.FilesAccess) {
		return false
	}
	if len(want.StatusRights) != len(have.StatusRights) {
		return false
	}
	haveSet := make(map[kommo.StatusRight]struct{}, len(have.StatusRights))
	for _, sr := range have.StatusRights {
		haveSet[sr] = struct{}{}
	}
	for _, sr := range want.StatusRights {
		if _, ok := haveSet[sr]; !ok {
			return false
		}
	}
	return true
}

func entityRightsEqual(a, b *kommo.EntityRights) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
