// ABOUTME: MCP tool catalog bound to one tenant's Teable client
// ABOUTME: Registers the fixed tool set and routes calls to the upstream API

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/relaymark/teable-gateway/internal/teable"
)

const serverVersion = "1.0.0"

// Binding ties a tool catalog to one tenant: its Teable client, its quota,
// and the hooks the gateway wants fired on every call.
type Binding struct {
	Client  *teable.Client
	Tier    string
	Ceiling int

	// Upgrade links shown in quota rejection payloads
	PaymentLinkPro        string
	PaymentLinkEnterprise string

	// OnToolCall is invoked before each tool handler runs. Optional.
	OnToolCall func(toolName string)

	// OnQuotaReject is invoked when the quota guard rejects a write. Optional.
	OnQuotaReject func()

	Logger *slog.Logger
}

// catalog holds the handlers; one instance per bound tenant session.
type catalog struct {
	b      Binding
	logger *slog.Logger
}

// NewServer builds an MCP server exposing the full Teable tool catalog for
// one tenant. Every session gets its own instance so the binding never leaks
// across tenants.
func NewServer(b Binding) *server.MCPServer {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tools")
	}
	c := &catalog{b: b, logger: logger}

	srv := server.NewMCPServer("teable-gateway", serverVersion,
		server.WithToolCapabilities(true))

	c.register(srv)
	return srv
}

func (c *catalog) register(srv *server.MCPServer) {
	add := func(tool mcp.Tool, handler server.ToolHandlerFunc) {
		srv.AddTool(tool, c.instrument(tool.Name, handler))
	}

	// Spaces and bases
	add(mcp.NewTool("list_spaces",
		mcp.WithDescription("List all spaces/workspaces the user has access to. Use this first to discover available spaces."),
	), c.listSpaces)
	add(mcp.NewTool("list_bases",
		mcp.WithDescription("List all bases in a specific space. Use list_spaces first to get the spaceId."),
		mcp.WithString("spaceId", mcp.Required(), mcp.Description("The space ID (starts with spc...)")),
	), c.listBases)
	add(mcp.NewTool("get_base",
		mcp.WithDescription("Get details of a specific base including its tables"),
		mcp.WithString("baseId", mcp.Required(), mcp.Description("The base ID (starts with bse...)")),
	), c.getBase)

	// Tables
	add(mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables in a Teable base"),
		mcp.WithString("baseId", mcp.Required(), mcp.Description("The base ID")),
	), c.listTables)
	add(mcp.NewTool("get_table",
		mcp.WithDescription("Get details of a specific table"),
		mcp.WithString("baseId", mcp.Required(), mcp.Description("The base ID")),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
	), c.getTable)
	add(mcp.NewTool("create_table",
		mcp.WithDescription("Create a new table in a Teable base"),
		mcp.WithString("baseId", mcp.Required(), mcp.Description("The base ID")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name for the new table")),
		mcp.WithArray("fields", mcp.Description("Optional initial field definitions"),
			mcp.Items(map[string]any{"type": "object"})),
	), c.createTable)
	add(mcp.NewTool("delete_table",
		mcp.WithDescription("Delete a table from a Teable base"),
		mcp.WithString("baseId", mcp.Required(), mcp.Description("The base ID")),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
	), c.deleteTable)

	// Records
	add(mcp.NewTool("list_records",
		mcp.WithDescription("List records in a Teable table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("viewId", mcp.Description("Optional view to list from")),
		mcp.WithString("filterByFormula", mcp.Description("Optional filter formula")),
		mcp.WithNumber("maxRecords", mcp.Description("Maximum number of records to return")),
	), c.listRecords)
	add(mcp.NewTool("get_record",
		mcp.WithDescription("Get a specific record by ID"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("recordId", mcp.Required(), mcp.Description("The record ID")),
	), c.getRecord)
	add(mcp.NewTool("create_record",
		mcp.WithDescription("Create a new record in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values keyed by field name")),
	), c.createRecord)
	add(mcp.NewTool("create_records",
		mcp.WithDescription("Create multiple records in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithArray("records", mcp.Required(), mcp.Description("Records to create, each with a fields object"),
			mcp.Items(map[string]any{"type": "object"})),
	), c.createRecords)
	add(mcp.NewTool("update_record",
		mcp.WithDescription("Update a record in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("recordId", mcp.Required(), mcp.Description("The record ID")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values to update")),
	), c.updateRecord)
	add(mcp.NewTool("update_records",
		mcp.WithDescription("Update multiple records in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithArray("records", mcp.Required(), mcp.Description("Records to update, each with id and fields"),
			mcp.Items(map[string]any{"type": "object"})),
	), c.updateRecords)
	add(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record from a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("recordId", mcp.Required(), mcp.Description("The record ID")),
	), c.deleteRecord)
	add(mcp.NewTool("delete_records",
		mcp.WithDescription("Delete multiple records from a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithArray("recordIds", mcp.Required(), mcp.Description("Record IDs to delete"),
			mcp.Items(map[string]any{"type": "string"})),
	), c.deleteRecords)

	// Fields
	add(mcp.NewTool("list_fields",
		mcp.WithDescription("List all fields in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
	), c.listFields)
	add(mcp.NewTool("create_field",
		mcp.WithDescription("Create a new field in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Field name")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Field type, e.g. singleLineText, number")),
		mcp.WithObject("options", mcp.Description("Optional type-specific options")),
	), c.createField)
	add(mcp.NewTool("update_field",
		mcp.WithDescription("Update a field in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("fieldId", mcp.Required(), mcp.Description("The field ID")),
		mcp.WithString("name", mcp.Description("New field name")),
		mcp.WithObject("options", mcp.Description("New type-specific options")),
	), c.updateField)
	add(mcp.NewTool("delete_field",
		mcp.WithDescription("Delete a field from a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("fieldId", mcp.Required(), mcp.Description("The field ID")),
	), c.deleteField)

	// Views
	add(mcp.NewTool("list_views",
		mcp.WithDescription("List all views in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
	), c.listViews)
	add(mcp.NewTool("create_view",
		mcp.WithDescription("Create a new view in a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("name", mcp.Required(), mcp.Description("View name")),
		mcp.WithString("type", mcp.Description("View type, defaults to grid")),
	), c.createView)
	add(mcp.NewTool("delete_view",
		mcp.WithDescription("Delete a view from a table"),
		mcp.WithString("tableId", mcp.Required(), mcp.Description("The table ID")),
		mcp.WithString("viewId", mcp.Required(), mcp.Description("The view ID")),
	), c.deleteView)
}

// instrument fires the usage hook and converts handler errors into
// protocol-level results so a failed call never tears the session down.
func (c *catalog) instrument(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if c.b.OnToolCall != nil {
			c.b.OnToolCall(name)
		}
		result, err := handler(ctx, req)
		if err != nil {
			c.logger.Warn("tool call failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}

// jsonResult serializes v as indented JSON text
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Spaces and bases

func (c *catalog) listSpaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spaces, err := c.b.Client.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(spaces)
}

func (c *catalog) listBases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spaceID, err := req.RequireString("spaceId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bases, err := c.b.Client.ListBases(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return jsonResult(bases)
}

func (c *catalog) getBase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseID, err := req.RequireString("baseId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	base, err := c.b.Client.GetBase(ctx, baseID)
	if err != nil {
		return nil, err
	}
	return jsonResult(base)
}

// Tables

func (c *catalog) listTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseID, err := req.RequireString("baseId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tables, err := c.b.Client.ListTables(ctx, baseID)
	if err != nil {
		return nil, err
	}
	return jsonResult(tables)
}

func (c *catalog) getTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseID, err := req.RequireString("baseId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	table, err := c.b.Client.GetTable(ctx, baseID, tableID)
	if err != nil {
		return nil, err
	}
	return jsonResult(table)
}

func (c *catalog) createTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseID, err := req.RequireString("baseId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var fields []teable.Field
	if raw, ok := req.GetArguments()["fields"]; ok {
		if fields, err = decodeAs[[]teable.Field](raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid fields: %v", err)), nil
		}
	}

	table, err := c.b.Client.CreateTable(ctx, baseID, name, fields)
	if err != nil {
		return nil, err
	}
	return jsonResult(table)
}

func (c *catalog) deleteTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseID, err := req.RequireString("baseId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := c.b.Client.DeleteTable(ctx, baseID, tableID); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Table %s deleted successfully", tableID)), nil
}

// Records

func (c *catalog) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	list, err := c.b.Client.ListRecords(ctx, tableID, teable.ListRecordsOptions{
		ViewID:          req.GetString("viewId", ""),
		FilterByFormula: req.GetString("filterByFormula", ""),
		MaxRecords:      req.GetInt("maxRecords", 0),
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (c *catalog) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordID, err := req.RequireString("recordId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	record, err := c.b.Client.GetRecord(ctx, tableID, recordID)
	if err != nil {
		return nil, err
	}
	return jsonResult(record)
}

func (c *catalog) createRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, ok := req.GetArguments()["fields"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("fields must be an object"), nil
	}

	if rejection, err := c.checkQuota(ctx, 1); err != nil {
		return nil, err
	} else if rejection != nil {
		return rejection, nil
	}

	record, err := c.b.Client.CreateRecord(ctx, tableID, fields)
	if err != nil {
		return nil, err
	}
	return jsonResult(record)
}

func (c *catalog) createRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := req.GetArguments()["records"]
	if !ok {
		return mcp.NewToolResultError("records is required"), nil
	}
	records, err := decodeAs[[]teable.RecordInput](raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid records: %v", err)), nil
	}

	if rejection, err := c.checkQuota(ctx, len(records)); err != nil {
		return nil, err
	} else if rejection != nil {
		return rejection, nil
	}

	list, err := c.b.Client.CreateRecords(ctx, tableID, records)
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (c *catalog) updateRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordID, err := req.RequireString("recordId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, ok := req.GetArguments()["fields"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("fields must be an object"), nil
	}

	record, err := c.b.Client.UpdateRecord(ctx, tableID, recordID, fields)
	if err != nil {
		return nil, err
	}
	return jsonResult(record)
}

func (c *catalog) updateRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := req.GetArguments()["records"]
	if !ok {
		return mcp.NewToolResultError("records is required"), nil
	}
	records, err := decodeAs[[]teable.RecordUpdate](raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid records: %v", err)), nil
	}

	list, err := c.b.Client.UpdateRecords(ctx, tableID, records)
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (c *catalog) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordID, err := req.RequireString("recordId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := c.b.Client.DeleteRecord(ctx, tableID, recordID); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Record %s deleted successfully", recordID)), nil
}

func (c *catalog) deleteRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := req.RequireStringSlice("recordIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := c.b.Client.DeleteRecords(ctx, tableID, ids); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d records deleted successfully", len(ids))), nil
}

// Fields

func (c *catalog) listFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := c.b.Client.ListFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return jsonResult(fields)
}

func (c *catalog) createField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	options, _ := req.GetArguments()["options"].(map[string]any)

	field, err := c.b.Client.CreateField(ctx, tableID, teable.Field{
		Name:    name,
		Type:    fieldType,
		Options: options,
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(field)
}

func (c *catalog) updateField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := req.RequireString("fieldId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	updates := map[string]any{}
	if name := req.GetString("name", ""); name != "" {
		updates["name"] = name
	}
	if options, ok := req.GetArguments()["options"].(map[string]any); ok {
		updates["options"] = options
	}
	if len(updates) == 0 {
		return mcp.NewToolResultError("provide name or options to update"), nil
	}

	field, err := c.b.Client.UpdateField(ctx, tableID, fieldID, updates)
	if err != nil {
		return nil, err
	}
	return jsonResult(field)
}

func (c *catalog) deleteField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := req.RequireString("fieldId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := c.b.Client.DeleteField(ctx, tableID, fieldID); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Field %s deleted successfully", fieldID)), nil
}

// Views

func (c *catalog) listViews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	views, err := c.b.Client.ListViews(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return jsonResult(views)
}

func (c *catalog) createView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := c.b.Client.CreateView(ctx, tableID, name, req.GetString("type", "grid"))
	if err != nil {
		return nil, err
	}
	return jsonResult(view)
}

func (c *catalog) deleteView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID, err := req.RequireString("tableId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	viewID, err := req.RequireString("viewId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := c.b.Client.DeleteView(ctx, tableID, viewID); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("View %s deleted successfully", viewID)), nil
}

// decodeAs re-marshals a loosely typed argument value into T
func decodeAs[T any](raw any) (T, error) {
	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
