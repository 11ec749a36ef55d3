package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

func rolesSnapshot(roles ...kommo.Role) *Snapshot {
	return &Snapshot{
		FieldGroups: make(map[kommo.EntityType][]kommo.FieldGroup),
		Fields:      make(map[kommo.EntityType][]kommo.CustomField),
		Roles:       roles,
	}
}

func managerRole() kommo.Role {
	full := &kommo.EntityRights{View: "A", Edit: "A", Add: "A", Delete: "D", Export: "M"}
	return kommo.Role{
		ID:   601,
		Name: "Manager",
		Rights: kommo.Rights{
			Leads:    full,
			Contacts: full,
			StatusRights: []kommo.StatusRight{
				{EntityType: "leads", PipelineID: 501, StatusID: 702, Rights: kommo.EntityRights{View: "A", Edit: "G"}},
				{EntityType: "leads", PipelineID: 501, StatusID: WonStageID, Rights: kommo.EntityRights{View: "A"}}, // system, dropped
				{EntityType: "leads", PipelineID: 999, StatusID: 888, Rights: kommo.EntityRights{View: "A"}},        // unmapped, warns
			},
		},
	}
}

func TestRoleSyncCreatesRoleWithTranslatedStatusRights(t *testing.T) {
	slave, m, pipelineID, stageID := fieldFixture(t)

	r := NewRoleReplicator(testConfig(), zerolog.Nop())
	res, err := r.Sync(context.Background(), slave, rolesSnapshot(managerRole()), m, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Warnings)

	require.Len(t, slave.roles, 1)
	created := slave.roles[0]
	assert.Equal(t, "Manager", created.Name)
	require.Len(t, created.Rights.StatusRights, 1)
	assert.Equal(t, kommo.StatusRight{
		EntityType: "leads",
		PipelineID: pipelineID,
		StatusID:   stageID,
		Rights:     kommo.EntityRights{View: "A", Edit: "G"},
	}, created.Rights.StatusRights[0])

	// Entity rights travel verbatim.
	require.NotNil(t, created.Rights.Leads)
	assert.Equal(t, "A", created.Rights.Leads.View)

	slaveID, ok := m.Role(601)
	require.True(t, ok)
	assert.Equal(t, created.ID, slaveID)
}

func TestRoleSyncSecondRunPerformsNoWrites(t *testing.T) {
	slave, m, _, _ := fieldFixture(t)
	snap := rolesSnapshot(managerRole())

	r := NewRoleReplicator(testConfig(), zerolog.Nop())
	_, err := r.Sync(context.Background(), slave, snap, m, nil)
	require.NoError(t, err)

	before := slave.writeCount()
	res, err := r.Sync(context.Background(), slave, snap, m, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, res.Created+res.Updated+res.Deleted)
	assert.Equal(t, before, slave.writeCount(), "re-sync against unchanged master must not call the API")
}

func TestRoleSyncUpdatesChangedRole(t *testing.T) {
	slave, m, _, _ := fieldFixture(t)
	slave.roles = []kommo.Role{{
		ID:   9001,
		Name: "Manager",
		Rights: kommo.Rights{
			Leads:        &kommo.EntityRights{View: "D"},
			StatusRights: []kommo.StatusRight{},
		},
	}}

	r := NewRoleReplicator(testConfig(), zerolog.Nop())
	res, err := r.Sync(context.Background(), slave, rolesSnapshot(managerRole()), m, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Updated)

	require.Len(t, slave.roles, 1)
	assert.Equal(t, int64(9001), slave.roles[0].ID)
	assert.Equal(t, "A", slave.roles[0].Rights.Leads.View)

	slaveID, ok := m.Role(601)
	require.True(t, ok)
	assert.Equal(t, int64(9001), slaveID)
}

func TestRoleSyncRetriesWithEmptyStatusRights(t *testing.T) {
	slave, m, _, _ := fieldFixture(t)
	slave.rejectRoleSR = true

	r := NewRoleReplicator(testConfig(), zerolog.Nop())
	res, err := r.Sync(context.Background(), slave, rolesSnapshot(managerRole()), m, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Created)

	require.Len(t, slave.roles, 1)
	assert.Empty(t, slave.roles[0].Rights.StatusRights)
	// One warning for the unmapped entry plus one for the retry.
	assert.Equal(t, 2, res.Warnings)
}

func TestRoleSyncKeepsExtraRolesByDefault(t *testing.T) {
	slave, m, _, _ := fieldFixture(t)
	slave.roles = []kommo.Role{{ID: 9001, Name: "Local operator"}}

	r := NewRoleReplicator(testConfig(), zerolog.Nop())
	res, err := r.Sync(context.Background(), slave, rolesSnapshot(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	assert.Len(t, slave.roles, 1)
}

func TestRoleSyncDeletesExtraRolesWhenEnabled(t *testing.T) {
	slave, m, _, _ := fieldFixture(t)
	slave.roles = []kommo.Role{{ID: 9001, Name: "Local operator"}}

	cfg := testConfig()
	cfg.DeleteExtraRoles = true
	r := NewRoleReplicator(cfg, zerolog.Nop())

	res, err := r.Sync(context.Background(), slave, rolesSnapshot(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, slave.roles)
}
