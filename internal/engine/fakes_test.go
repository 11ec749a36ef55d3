package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// fakeStore is an in-memory MappingStore. Tests run a single
// (group, slave) pair, so the key columns are not tracked.
type fakeStore struct {
	pipelines map[int64]int64
	stages    map[int64]int64
	groups    map[kommo.EntityType]map[string]string
	fields    map[kommo.EntityType]map[int64]int64
	roles     map[int64]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pipelines: make(map[int64]int64),
		stages:    make(map[int64]int64),
		groups:    make(map[kommo.EntityType]map[string]string),
		fields:    make(map[kommo.EntityType]map[int64]int64),
		roles:     make(map[int64]int64),
	}
}

func (s *fakeStore) UpsertPipelineMapping(_ context.Context, _, _, masterID, slaveID int64) error {
	s.pipelines[masterID] = slaveID
	return nil
}

func (s *fakeStore) UpsertStageMapping(_ context.Context, _, _, masterID, slaveID int64) error {
	s.stages[masterID] = slaveID
	return nil
}

func (s *fakeStore) UpsertFieldGroupMapping(_ context.Context, _, _ int64, entity kommo.EntityType, masterID, slaveID string) error {
	if s.groups[entity] == nil {
		s.groups[entity] = make(map[string]string)
	}
	s.groups[entity][masterID] = slaveID
	return nil
}

func (s *fakeStore) UpsertFieldMapping(_ context.Context, _, _ int64, entity kommo.EntityType, masterID, slaveID int64) error {
	if s.fields[entity] == nil {
		s.fields[entity] = make(map[int64]int64)
	}
	s.fields[entity][masterID] = slaveID
	return nil
}

func (s *fakeStore) UpsertRoleMapping(_ context.Context, _, _, masterID, slaveID int64) error {
	s.roles[masterID] = slaveID
	return nil
}

func (s *fakeStore) PipelineMappings(_ context.Context, _, _ int64) (map[int64]int64, error) {
	return copyInt64Map(s.pipelines), nil
}

func (s *fakeStore) StageMappings(_ context.Context, _, _ int64) (map[int64]int64, error) {
	return copyInt64Map(s.stages), nil
}

func (s *fakeStore) FieldGroupMappings(_ context.Context, _, _ int64, entity kommo.EntityType) (map[string]string, error) {
	out := make(map[string]string, len(s.groups[entity]))
	for k, v := range s.groups[entity] {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) FieldMappings(_ context.Context, _, _ int64, entity kommo.EntityType) (map[int64]int64, error) {
	return copyInt64Map(s.fields[entity]), nil
}

func (s *fakeStore) RoleMappings(_ context.Context, _, _ int64) (map[int64]int64, error) {
	return copyInt64Map(s.roles), nil
}

func copyInt64Map(in map[int64]int64) map[int64]int64 {
	out := make(map[int64]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// fakeAPI is an in-memory slave tenant. Every mutating call is appended to
// writes so tests can assert exactly what was sent.
type fakeAPI struct {
	pipelines []kommo.Pipeline
	statuses  map[int64][]kommo.Status
	groups    map[kommo.EntityType][]kommo.FieldGroup
	fields    map[kommo.EntityType][]kommo.CustomField
	roles     []kommo.Role

	nextID int64
	writes []string

	// rejectFieldRS makes field writes carrying required_statuses fail
	// with a 400 validation body, like the real API does when a stage in
	// the list is not writable.
	rejectFieldRS bool
	// rejectRoleSR does the same for role writes with status_rights.
	rejectRoleSR bool

	pingErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		statuses: make(map[int64][]kommo.Status),
		groups:   make(map[kommo.EntityType][]kommo.FieldGroup),
		fields:   make(map[kommo.EntityType][]kommo.CustomField),
		nextID:   1000,
	}
}

func (f *fakeAPI) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeAPI) record(op string, args ...interface{}) {
	f.writes = append(f.writes, op+":"+fmt.Sprint(args...))
}

func (f *fakeAPI) writeCount() int {
	return len(f.writes)
}

// addPipeline seeds a pipeline with the vendor's system stages plus the
// given user stages, assigning IDs.
func (f *fakeAPI) addPipeline(name string, isMain bool, stageNames ...string) int64 {
	id := f.id()
	f.pipelines = append(f.pipelines, kommo.Pipeline{ID: id, Name: name, Sort: 1, IsMain: isMain})
	statuses := []kommo.Status{
		{ID: IncomingStageID, Name: "Incoming leads", Type: 1, PipelineID: id},
	}
	for _, n := range stageNames {
		statuses = append(statuses, kommo.Status{ID: f.id(), Name: n, Sort: 10, PipelineID: id})
	}
	statuses = append(statuses,
		kommo.Status{ID: WonStageID, Name: "Closed - won", PipelineID: id},
		kommo.Status{ID: LostStageID, Name: "Closed - lost", PipelineID: id},
	)
	f.statuses[id] = statuses
	return id
}

func (f *fakeAPI) stageID(pipelineID int64, name string) int64 {
	for _, st := range f.statuses[pipelineID] {
		if st.Name == name {
			return st.ID
		}
	}
	return 0
}

func (f *fakeAPI) ListPipelines(context.Context) ([]kommo.Pipeline, error) {
	out := make([]kommo.Pipeline, len(f.pipelines))
	copy(out, f.pipelines)
	return out, nil
}

func (f *fakeAPI) ListStatuses(_ context.Context, pipelineID int64) ([]kommo.Status, error) {
	out := make([]kommo.Status, len(f.statuses[pipelineID]))
	copy(out, f.statuses[pipelineID])
	return out, nil
}

func (f *fakeAPI) CreatePipeline(_ context.Context, p kommo.Pipeline) (*kommo.Pipeline, error) {
	f.record("create_pipeline", p.Name)
	id := f.id()
	created := kommo.Pipeline{ID: id, Name: p.Name, Sort: p.Sort, IsMain: p.IsMain, IsUnsortedOn: p.IsUnsortedOn}

	statuses := []kommo.Status{
		{ID: IncomingStageID, Name: "Incoming leads", Type: 1, PipelineID: id},
	}
	for _, st := range p.Statuses() {
		statuses = append(statuses, kommo.Status{ID: f.id(), Name: st.Name, Sort: st.Sort, Color: st.Color, PipelineID: id})
	}
	statuses = append(statuses,
		kommo.Status{ID: WonStageID, Name: "Closed - won", PipelineID: id},
		kommo.Status{ID: LostStageID, Name: "Closed - lost", PipelineID: id},
	)

	f.pipelines = append(f.pipelines, created)
	f.statuses[id] = statuses
	created.Embedded = &kommo.PipelineEmbedded{Statuses: statuses}
	return &created, nil
}

func (f *fakeAPI) UpdatePipeline(_ context.Context, id int64, p kommo.Pipeline) (*kommo.Pipeline, error) {
	f.record("update_pipeline", id)
	for i := range f.pipelines {
		if f.pipelines[i].ID == id {
			f.pipelines[i].Name = p.Name
			f.pipelines[i].Sort = p.Sort
			return &f.pipelines[i], nil
		}
	}
	return nil, &kommo.TransportError{Status: 404, Body: "pipeline not found"}
}

func (f *fakeAPI) DeletePipeline(_ context.Context, id int64) error {
	f.record("delete_pipeline", id)
	for i := range f.pipelines {
		if f.pipelines[i].ID == id {
			f.pipelines = append(f.pipelines[:i], f.pipelines[i+1:]...)
			delete(f.statuses, id)
			return nil
		}
	}
	return nil
}

func (f *fakeAPI) CreateStatus(_ context.Context, pipelineID int64, s kommo.Status) (*kommo.Status, error) {
	f.record("create_status", pipelineID, s.Name)
	created := kommo.Status{ID: f.id(), Name: s.Name, Sort: s.Sort, Color: s.Color, PipelineID: pipelineID}
	statuses := f.statuses[pipelineID]
	f.statuses[pipelineID] = append(statuses, created)
	return &created, nil
}

func (f *fakeAPI) UpdateStatus(_ context.Context, pipelineID, statusID int64, s kommo.Status) (*kommo.Status, error) {
	f.record("update_status", pipelineID, statusID)
	for i, st := range f.statuses[pipelineID] {
		if st.ID == statusID {
			// The PATCH body is applied verbatim, empty name included,
			// like the real endpoint does.
			f.statuses[pipelineID][i].Name = s.Name
			f.statuses[pipelineID][i].Sort = s.Sort
			f.statuses[pipelineID][i].Color = s.Color
			return &f.statuses[pipelineID][i], nil
		}
	}
	return nil, &kommo.TransportError{Status: 404, Body: "status not found"}
}

func (f *fakeAPI) DeleteStatus(_ context.Context, pipelineID, statusID int64) error {
	f.record("delete_status", pipelineID, statusID)
	statuses := f.statuses[pipelineID]
	for i, st := range statuses {
		if st.ID == statusID {
			f.statuses[pipelineID] = append(statuses[:i], statuses[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeAPI) ListFieldGroups(_ context.Context, entity kommo.EntityType) ([]kommo.FieldGroup, error) {
	out := make([]kommo.FieldGroup, len(f.groups[entity]))
	copy(out, f.groups[entity])
	return out, nil
}

func (f *fakeAPI) CreateFieldGroup(_ context.Context, entity kommo.EntityType, g kommo.FieldGroup) (*kommo.FieldGroup, error) {
	f.record("create_group", entity, g.Name)
	created := kommo.FieldGroup{ID: strconv.FormatInt(f.id(), 10), Name: g.Name, Sort: g.Sort}
	f.groups[entity] = append(f.groups[entity], created)
	return &created, nil
}

func (f *fakeAPI) UpdateFieldGroup(_ context.Context, entity kommo.EntityType, id string, g kommo.FieldGroup) (*kommo.FieldGroup, error) {
	f.record("update_group", entity, id)
	for i := range f.groups[entity] {
		if f.groups[entity][i].ID == id {
			f.groups[entity][i].Name = g.Name
			f.groups[entity][i].Sort = g.Sort
			return &f.groups[entity][i], nil
		}
	}
	return nil, &kommo.TransportError{Status: 404, Body: "group not found"}
}

func (f *fakeAPI) DeleteFieldGroup(_ context.Context, entity kommo.EntityType, id string) error {
	f.record("delete_group", entity, id)
	groups := f.groups[entity]
	for i, g := range groups {
		if g.ID == id {
			f.groups[entity] = append(groups[:i], groups[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeAPI) ListCustomFields(_ context.Context, entity kommo.EntityType) ([]kommo.CustomField, error) {
	out := make([]kommo.CustomField, len(f.fields[entity]))
	copy(out, f.fields[entity])
	return out, nil
}

func (f *fakeAPI) CreateCustomField(_ context.Context, entity kommo.EntityType, field kommo.CustomField) (*kommo.CustomField, error) {
	f.record("create_field", entity, field.Name)
	if f.rejectFieldRS && len(field.RequiredStatuses) > 0 {
		return nil, &kommo.TransportError{Status: 400, Body: `{"title":"Bad Request","detail":"required_statuses validation failed"}`}
	}
	created := field
	created.ID = f.id()
	f.fields[entity] = append(f.fields[entity], created)
	return &created, nil
}

func (f *fakeAPI) UpdateCustomField(_ context.Context, entity kommo.EntityType, id int64, field kommo.CustomField) (*kommo.CustomField, error) {
	f.record("update_field", entity, id)
	if f.rejectFieldRS && len(field.RequiredStatuses) > 0 {
		return nil, &kommo.TransportError{Status: 400, Body: `{"title":"Bad Request","detail":"required_statuses validation failed"}`}
	}
	for i := range f.fields[entity] {
		if f.fields[entity][i].ID == id {
			updated := field
			updated.ID = id
			f.fields[entity][i] = updated
			return &f.fields[entity][i], nil
		}
	}
	return nil, &kommo.TransportError{Status: 404, Body: "field not found"}
}

func (f *fakeAPI) DeleteCustomField(_ context.Context, entity kommo.EntityType, id int64) error {
	f.record("delete_field", entity, id)
	fields := f.fields[entity]
	for i, fl := range fields {
		if fl.ID == id {
			f.fields[entity] = append(fields[:i], fields[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeAPI) ListRoles(context.Context) ([]kommo.Role, error) {
	out := make([]kommo.Role, len(f.roles))
	copy(out, f.roles)
	return out, nil
}

func (f *fakeAPI) CreateRole(_ context.Context, r kommo.Role) (*kommo.Role, error) {
	f.record("create_role", r.Name)
	if f.rejectRoleSR && len(r.Rights.StatusRights) > 0 {
		return nil, &kommo.TransportError{Status: 400, Body: `{"title":"Bad Request","detail":"status_rights validation failed"}`}
	}
	created := r
	created.ID = f.id()
	f.roles = append(f.roles, created)
	return &created, nil
}

func (f *fakeAPI) UpdateRole(_ context.Context, id int64, r kommo.Role) (*kommo.Role, error) {
	f.record("update_role", id)
	if f.rejectRoleSR && len(r.Rights.StatusRights) > 0 {
		return nil, &kommo.TransportError{Status: 400, Body: `{"title":"Bad Request","detail":"status_rights validation failed"}`}
	}
	for i := range f.roles {
		if f.roles[i].ID == id {
			updated := r
			updated.ID = id
			f.roles[i] = updated
			return &f.roles[i], nil
		}
	}
	return nil, &kommo.TransportError{Status: 404, Body: "role not found"}
}

func (f *fakeAPI) DeleteRole(_ context.Context, id int64) error {
	f.record("delete_role", id)
	for i := range f.roles {
		if f.roles[i].ID == id {
			f.roles = append(f.roles[:i], f.roles[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeAPI) Ping(context.Context) (*kommo.AccountInfo, error) {
	if f.pingErr != nil {
		return nil, f.pingErr
	}
	return &kommo.AccountInfo{ID: 1, Subdomain: "fake"}, nil
}
