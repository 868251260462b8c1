// Package openapi builds the OpenAPI description of the keygate HTTP API.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Generate returns the OpenAPI 3.0 document for the redeem, status and
// admin endpoints. Component references are resolved in place so the
// document validates without a round trip through the loader.
func Generate(version, baseURL string) (*openapi3.T, error) {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "keygate API",
			Description: "License key redemption, status checks and key administration.",
			Version:     version,
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Token issued by `keygate token`; its actor claim names the operator.",
		},
	}

	for name, s := range componentSchemas() {
		doc.Components.Schemas[name] = &openapi3.SchemaRef{Value: s}
	}

	doc.Paths = openapi3.NewPaths()
	addClientPaths(doc, "")
	addClientPaths(doc, "/api/v1")
	addAdminPaths(doc)
	addProbePaths(doc)

	if err := openapi3.NewLoader().ResolveRefsIn(doc, nil); err != nil {
		return nil, fmt.Errorf("resolve schema refs: %w", err)
	}
	return doc, nil
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func str(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: desc}}
}

func timestamp(desc string, nullable bool) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"string"},
		Format:      "date-time",
		Description: desc,
		Nullable:    nullable,
	}}
}

func integer(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", Description: desc}}
}

func enum(desc string, values ...interface{}) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: values, Description: desc}}
}

func object(required []string, props openapi3.Schemas) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{"object"}, Required: required, Properties: props}
}

func componentSchemas() map[string]*openapi3.Schema {
	keyProps := openapi3.Schemas{
		"id":          str("Opaque record identifier."),
		"key":         str("The credential presented by clients."),
		"is_active":   {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}, Description: "False once the key is banned."}},
		"created_at":  timestamp("Issuance time.", false),
		"expires_at":  timestamp("Expiry deadline; absent for lifetime keys.", true),
		"redeemed_at": timestamp("Time of first successful redemption or ban.", true),
		"redeemed_by": str("Origin tag of the first redemption, or the operator who banned the key."),
		"redeemed_ip": str("Origin address of the first redemption."),
		"hwid":        str("Hardware id bound on first use."),
	}
	infoProps := openapi3.Schemas{
		"status":               enum("Display status.", "Active", "Redeemed / Banned", "Expired"),
		"deactivated_by_admin": {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
	}
	for k, v := range keyProps {
		infoProps[k] = v
	}

	return map[string]*openapi3.Schema{
		"Key":     object([]string{"id", "key", "is_active", "created_at"}, keyProps),
		"KeyInfo": object([]string{"id", "key", "is_active", "created_at", "status"}, infoProps),
		"KeyRequest": object([]string{"key"}, openapi3.Schemas{
			"key":  str("The license key."),
			"hwid": str("Optional hardware id of the calling device."),
		}),
		"RedeemResponse": object([]string{"status", "message"}, openapi3.Schemas{
			"status":  enum("", "success", "error"),
			"message": str("Human-readable outcome."),
		}),
		"StatusResponse": object([]string{"status"}, openapi3.Schemas{
			"status": enum("", "valid", "invalid"),
		}),
		"GenerateRequest": object(nil, openapi3.Schemas{
			"duration": enum("Validity period; defaults to lifetime.", "day", "week", "lifetime", "none"),
		}),
		"BanResponse": object([]string{"key", "result"}, openapi3.Schemas{
			"key":    str(""),
			"result": enum("", "BANNED", "ALREADY_INACTIVE"),
		}),
		"NukeTicket": object([]string{"ticket", "state", "deadline"}, openapi3.Schemas{
			"ticket":     str("Confirmation ticket id."),
			"actor":      str("Operator who requested the nuke."),
			"state":      enum("", "pending", "deleting", "confirmed", "cancelled", "expired", "failed"),
			"created_at": timestamp("", false),
			"deadline":   timestamp("Unconfirmed tickets expire at this time.", false),
			"deleted":    integer("Keys deleted once confirmed."),
			"error":      str(""),
		}),
		"KeyList": object([]string{"resource"}, openapi3.Schemas{
			"resource": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: ref("KeyInfo")}},
			"meta": {Value: object(nil, openapi3.Schemas{
				"count":   integer("Keys in this page."),
				"total":   integer("Keys in the store."),
				"limit":   integer(""),
				"offset":  integer(""),
				"took_ms": {Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}},
			})},
		}),
		"ErrorResponse": object([]string{"error"}, openapi3.Schemas{
			"error": {Value: object([]string{"code", "message"}, openapi3.Schemas{
				"code":    {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"message": str(""),
				"context": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			})},
		}),
	}
}

// response is one entry of an operation's response map.
type response struct {
	code   string
	desc   string
	schema string
}

func responses(rs ...response) *openapi3.Responses {
	out := openapi3.NewResponses()
	errDesc := "Unexpected error"
	out.Set("default", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &errDesc,
		Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
	}})
	for _, r := range rs {
		desc := r.desc
		resp := &openapi3.Response{Description: &desc}
		if r.schema != "" {
			resp.Content = openapi3.NewContentWithJSONSchemaRef(ref(r.schema))
		}
		out.Set(r.code, &openapi3.ResponseRef{Value: resp})
	}
	return out
}

func keyBody() *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
		Required: true,
		Content: openapi3.Content{
			"application/x-www-form-urlencoded": &openapi3.MediaType{Schema: ref("KeyRequest")},
			"application/json":                  &openapi3.MediaType{Schema: ref("KeyRequest")},
		},
	}}
}

func keyQuery() openapi3.Parameters {
	return openapi3.Parameters{
		{Value: openapi3.NewQueryParameter("key").WithDescription("The license key.").WithSchema(openapi3.NewStringSchema())},
		{Value: openapi3.NewQueryParameter("hwid").WithDescription("Optional hardware id.").WithSchema(openapi3.NewStringSchema())},
	}
}

// addClientPaths adds the redeem and status endpoints under prefix.
func addClientPaths(doc *openapi3.T, prefix string) {
	suffix := ""
	if prefix != "" {
		suffix = "V1"
	}
	redeemed := response{"200", "Key granted", "RedeemResponse"}
	denied := []response{
		{"400", "No key provided", "RedeemResponse"},
		{"403", "Key invalid, banned, expired or bound to another device", "RedeemResponse"},
		{"500", "Server error", "RedeemResponse"},
	}

	doc.Paths.Set(prefix+"/redeem", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"client"},
			Summary:     "Redeem a key",
			Description: "Validates the key and records first-use metadata exactly once. Keys stay usable until they expire or are banned.",
			OperationID: "redeem" + suffix,
			RequestBody: keyBody(),
			Responses:   responses(append([]response{redeemed}, denied...)...),
		},
	})

	statusResponses := func() *openapi3.Responses {
		return responses(
			response{"200", "Key status", "StatusResponse"},
			response{"400", "No key provided", "RedeemResponse"},
			response{"500", "Server error", "RedeemResponse"},
		)
	}
	doc.Paths.Set(prefix+"/status", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"client"},
			Summary:     "Check a key",
			Description: "Reports whether the key would be accepted right now. Never records anything.",
			OperationID: "statusGet" + suffix,
			Parameters:  keyQuery(),
			Responses:   statusResponses(),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"client"},
			Summary:     "Check a key",
			OperationID: "statusPost" + suffix,
			RequestBody: keyBody(),
			Responses:   statusResponses(),
		},
	})
}

func addAdminPaths(doc *openapi3.T) {
	secured := &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	keyParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("key").WithSchema(openapi3.NewStringSchema())}
	ticketParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("ticket").WithSchema(openapi3.NewStringSchema())}
	unauthorized := response{"401", "Missing or invalid token", "ErrorResponse"}

	op := func(id, summary string, params openapi3.Parameters, body *openapi3.RequestBodyRef, rs ...response) *openapi3.Operation {
		return &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     summary,
			OperationID: id,
			Parameters:  params,
			RequestBody: body,
			Security:    secured,
			Responses:   responses(append(rs, unauthorized)...),
		}
	}

	limit := &openapi3.ParameterRef{Value: openapi3.NewQueryParameter("limit").
		WithDescription("Page size (default 25, max 1000).").
		WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"})}
	offset := &openapi3.ParameterRef{Value: openapi3.NewQueryParameter("offset").
		WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"})}
	generateBody := &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
		Content: openapi3.NewContentWithJSONSchemaRef(ref("GenerateRequest")),
	}}

	doc.Paths.Set("/api/v1/admin/keys", &openapi3.PathItem{
		Get: op("listKeys", "List keys newest first", openapi3.Parameters{limit, offset}, nil,
			response{"200", "A page of keys", "KeyList"}),
		Post: op("generateKey", "Generate a key", nil, generateBody,
			response{"201", "The new key", "Key"},
			response{"400", "Unknown duration", "ErrorResponse"}),
	})
	doc.Paths.Set("/api/v1/admin/keys/{key}", &openapi3.PathItem{
		Get: op("getKey", "Inspect a key", openapi3.Parameters{keyParam}, nil,
			response{"200", "The key and its display status", "KeyInfo"},
			response{"404", "No such key", "ErrorResponse"}),
	})
	doc.Paths.Set("/api/v1/admin/keys/{key}/ban", &openapi3.PathItem{
		Post: op("banKey", "Ban a key", openapi3.Parameters{keyParam}, nil,
			response{"200", "Banned, or already inactive", "BanResponse"},
			response{"404", "No such key", "ErrorResponse"}),
	})
	doc.Paths.Set("/api/v1/admin/nuke", &openapi3.PathItem{
		Post: op("requestNuke", "Request deletion of every key", nil, nil,
			response{"202", "Pending confirmation ticket", "NukeTicket"}),
	})
	doc.Paths.Set("/api/v1/admin/nuke/{ticket}", &openapi3.PathItem{
		Get: op("getNuke", "Inspect a nuke ticket", openapi3.Parameters{ticketParam}, nil,
			response{"200", "Ticket snapshot", "NukeTicket"},
			response{"404", "No such ticket", "ErrorResponse"}),
		Delete: op("cancelNuke", "Cancel a pending nuke", openapi3.Parameters{ticketParam}, nil,
			response{"200", "Cancelled", ""},
			response{"403", "Ticket belongs to another operator", "ErrorResponse"},
			response{"409", "Ticket no longer pending", "ErrorResponse"}),
	})
	doc.Paths.Set("/api/v1/admin/nuke/{ticket}/confirm", &openapi3.PathItem{
		Post: op("confirmNuke", "Confirm a pending nuke", openapi3.Parameters{ticketParam}, nil,
			response{"200", "Keys deleted", ""},
			response{"403", "Ticket belongs to another operator", "ErrorResponse"},
			response{"409", "Ticket expired, cancelled or already used", "ErrorResponse"}),
	})
}

func addProbePaths(doc *openapi3.T) {
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags: []string{"system"}, Summary: "Liveness probe", OperationID: "healthz",
			Responses: responses(response{"200", "Process is running", ""}),
		},
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags: []string{"system"}, Summary: "Readiness probe", OperationID: "readyz",
			Responses: responses(
				response{"200", "Key store reachable", ""},
				response{"503", "Key store unreachable", ""},
			),
		},
	})
}
