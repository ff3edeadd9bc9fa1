// Package docs registers the OpenAPI document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "summary": "Database connectivity check",
                "responses": {
                    "200": {"description": "healthy"},
                    "503": {"description": "dependency unavailable"}
                }
            }
        },
        "/files": {
            "get": {
                "summary": "List files of the collection",
                "parameters": [
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"},
                    {"type": "boolean", "name": "mine", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "page of file records"},
                    "401": {"description": "authentication required"}
                }
            }
        },
        "/files/{id}": {
            "get": {
                "summary": "File metadata and download link",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "file record"},
                    "404": {"description": "not found"}
                }
            },
            "delete": {
                "summary": "Remove a file and all its versions",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "number of removed records"},
                    "403": {"description": "removal denied or disabled"},
                    "404": {"description": "not found"}
                }
            }
        },
        "/cdn/storage/{collection}/__upload": {
            "post": {
                "summary": "Upload one chunk",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "collection", "in": "path", "required": true},
                    {"type": "string", "name": "fileId", "in": "formData"},
                    {"type": "integer", "name": "chunkId", "in": "formData", "required": true},
                    {"type": "boolean", "name": "eof", "in": "formData"},
                    {"type": "string", "name": "name", "in": "formData"},
                    {"type": "string", "name": "type", "in": "formData"},
                    {"type": "integer", "name": "size", "in": "formData"},
                    {"type": "string", "name": "checksum", "in": "formData"},
                    {"type": "string", "name": "meta", "in": "formData"},
                    {"type": "file", "name": "chunk", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "chunk accepted"},
                    "201": {"description": "upload complete"},
                    "400": {"description": "invalid chunk"},
                    "403": {"description": "aborted by policy"},
                    "404": {"description": "unknown upload"},
                    "409": {"description": "out of order chunk"},
                    "422": {"description": "checksum mismatch"},
                    "429": {"description": "too many chunks in flight"}
                }
            }
        },
        "/cdn/storage/{collection}/{id}/{version}/{name}": {
            "get": {
                "summary": "Download a file version",
                "parameters": [
                    {"type": "string", "name": "collection", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "version", "in": "path", "required": true},
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"type": "string", "name": "Range", "in": "header"},
                    {"type": "boolean", "name": "download", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "full file"},
                    "206": {"description": "partial content"},
                    "401": {"description": "authentication required"},
                    "404": {"description": "not found"},
                    "409": {"description": "upload incomplete"},
                    "416": {"description": "range not satisfiable"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Files CDN API",
	Description:      "Chunked uploads and range-capable downloads of stored files.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
