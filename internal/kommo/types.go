package kommo

// EntityType identifies which CRM entity a custom field or field group
// belongs to. The three kinds share one schema and differ only in the
// endpoint path.
type EntityType string

const (
	EntityLeads     EntityType = "leads"
	EntityContacts  EntityType = "contacts"
	EntityCompanies EntityType = "companies"
)

// EntityTypes lists the entity kinds in the order they are synchronized.
var EntityTypes = []EntityType{EntityLeads, EntityContacts, EntityCompanies}

// Pipeline is a sales pipeline. On create the API accepts a single-element
// array with embedded statuses and mirrors them back in the response.
type Pipeline struct {
	ID           int64             `json:"id,omitempty"`
	Name         string            `json:"name"`
	Sort         int               `json:"sort"`
	IsMain       bool              `json:"is_main"`
	IsUnsortedOn bool              `json:"is_unsorted_on"`
	Embedded     *PipelineEmbedded `json:"_embedded,omitempty"`
}

type PipelineEmbedded struct {
	Statuses []Status `json:"statuses"`
}

// Statuses returns the embedded statuses, or nil when none were requested.
func (p *Pipeline) Statuses() []Status {
	if p.Embedded == nil {
		return nil
	}
	return p.Embedded.Statuses
}

// Status is a pipeline stage. Type 1 marks the system-managed incoming
// stage; IDs 142 and 143 are the fixed won/lost stages.
type Status struct {
	ID         int64  `json:"id,omitempty"`
	Name       string `json:"name"`
	Sort       int    `json:"sort"`
	Color      string `json:"color,omitempty"`
	Type       int    `json:"type"`
	PipelineID int64  `json:"pipeline_id,omitempty"`
}

// FieldGroup groups custom fields on an entity card. Group IDs are strings
// in the API ("default", numeric strings for user-created groups).
type FieldGroup struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

// RequiredStatus makes a custom field mandatory while a record sits in the
// given stage of the given pipeline.
type RequiredStatus struct {
	PipelineID int64 `json:"pipeline_id"`
	StatusID   int64 `json:"status_id"`
}

// FieldEnum is one option of a select-like field. IDs are generated by the
// account that owns the field and never travel between tenants.
type FieldEnum struct {
	ID    int64  `json:"id,omitempty"`
	Value string `json:"value"`
	Sort  int    `json:"sort"`
}

// CustomField is a user-defined attribute on leads, contacts or companies.
type CustomField struct {
	ID               int64            `json:"id,omitempty"`
	Name             string           `json:"name"`
	Type             string           `json:"type"`
	Code             string           `json:"code,omitempty"`
	Sort             int              `json:"sort"`
	IsRequired       bool             `json:"is_required,omitempty"`
	GroupID          string           `json:"group_id,omitempty"`
	RequiredStatuses []RequiredStatus `json:"required_statuses,omitempty"`
	Enums            []FieldEnum      `json:"enums,omitempty"`
	Currency         string           `json:"currency,omitempty"`
}

// EntityRights is the per-action permission record used both for entity
// kinds and for per-stage rights. Values are the API's "A"/"G"/"M"/"D"
// scopes and are copied verbatim between tenants.
type EntityRights struct {
	View   string `json:"view,omitempty"`
	Edit   string `json:"edit,omitempty"`
	Add    string `json:"add,omitempty"`
	Delete string `json:"delete,omitempty"`
	Export string `json:"export,omitempty"`
}

// StatusRight grants stage-scoped permissions inside a pipeline.
type StatusRight struct {
	EntityType string       `json:"entity_type"`
	PipelineID int64        `json:"pipeline_id"`
	StatusID   int64        `json:"status_id"`
	Rights     EntityRights `json:"rights"`
}

// Rights is a role's full permission matrix.
type Rights struct {
	Leads         *EntityRights `json:"leads,omitempty"`
	Contacts      *EntityRights `json:"contacts,omitempty"`
	Companies     *EntityRights `json:"companies,omitempty"`
	Tasks         *EntityRights `json:"tasks,omitempty"`
	MailAccess    *bool         `json:"mail_access,omitempty"`
	CatalogAccess *bool         `json:"catalog_access,omitempty"`
	FilesAccess   *bool         `json:"files_access,omitempty"`
	StatusRights  []StatusRight `json:"status_rights"`
}

// Role is a named permission profile.
type Role struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Rights Rights `json:"rights"`
}

// AccountInfo is the minimal shape of GET /account used by Ping.
type AccountInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
}
