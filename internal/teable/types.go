// ABOUTME: Wire types for the Teable HTTP API
// ABOUTME: Spaces, bases, tables, fields, views, records and list options

package teable

// Space is a top-level workspace grouping bases.
type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Base is a database-like grouping of tables inside a space.
type Base struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SpaceID string `json:"spaceId"`
}

// Table is one table inside a base.
type Table struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is one column definition.
type Field struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// View is one saved view of a table.
type View struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Record is one row, keyed by field name or id depending on the request.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// RecordList is the upstream envelope for record listings.
type RecordList struct {
	Records []Record `json:"records"`
}

// ListRecordsOptions narrows a record listing. Zero values are omitted from
// the request.
type ListRecordsOptions struct {
	ViewID          string
	FilterByFormula string
	MaxRecords      int
}

// RecordInput is the payload for creating one record in a batch.
type RecordInput struct {
	Fields map[string]any `json:"fields"`
}

// RecordUpdate is the payload for updating one record in a batch.
type RecordUpdate struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
