package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"

	"fro-server/internal/platform/logging"
)

const docsHTML = `<!DOCTYPE html>
<html lang="pt-BR">
	<head>
		<meta charset="utf-8" />
		<title>Frô API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "definitions": {
        "APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "message": {"type": "string"},
                "code": {"type": "integer"}
            }
        }
    },
    "paths": {
        "/health": {"get": {"tags": ["System"], "summary": "Liveness and service information", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/APIResponse"}}}}},
        "/analyze": {"post": {"tags": ["Analysis"], "summary": "One-shot analysis", "consumes": ["multipart/form-data"],
            "parameters": [{"type": "file", "name": "file", "in": "formData", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/APIResponse"}}, "422": {"description": "unreadable image"}, "502": {"description": "model failure"}, "504": {"description": "model timeout"}}}},
        "/workspaces/{id}": {
            "get": {"tags": ["Workspace"], "summary": "Workspace state", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/APIResponse"}}}},
            "delete": {"tags": ["Workspace"], "summary": "Clear everything", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "analysis running"}}}
        },
        "/workspaces/{id}/camera": {
            "post": {"tags": ["Camera"], "summary": "Open a camera", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "camera unavailable, use file upload"}}},
            "delete": {"tags": ["Camera"], "summary": "Close the camera", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/workspaces/{id}/camera/switch": {"post": {"tags": ["Camera"], "summary": "Switch to the next camera", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/workspaces/{id}/camera/capture": {"post": {"tags": ["Camera"], "summary": "Capture a still", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "capture failed"}}}},
        "/workspaces/{id}/file": {"post": {"tags": ["Workspace"], "summary": "Upload a photo", "consumes": ["multipart/form-data"],
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "file", "name": "file", "in": "formData", "required": true}],
            "responses": {"200": {"description": "OK"}, "422": {"description": "unreadable image"}}}},
        "/workspaces/{id}/analysis": {"post": {"tags": ["Analysis"], "summary": "Analyze the current image", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "400": {"description": "no image"}, "409": {"description": "busy"}, "502": {"description": "model failure"}, "504": {"description": "model timeout"}}}},
        "/preferences/{client}/tutorial": {
            "get": {"tags": ["Preferences"], "summary": "Whether the tutorial was shown", "parameters": [{"type": "string", "name": "client", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["Preferences"], "summary": "Record that the tutorial was shown", "parameters": [{"type": "string", "name": "client", "in": "path", "required": true}, {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"seen": {"type": "boolean"}}}}], "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds the exported OpenAPI metadata.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Frô API",
	Description:      "Identificação de plantas e diagnóstico de saúde a partir de fotos.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

func registerDocs(engine *gin.Engine, logger *logging.Logger) {
	engine.GET("/openapi.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
		if err != nil {
			logger.ErrorTag("HTTP", "render openapi document: %v", err)
			RespondError(c, http.StatusInternalServerError, "failed to generate openapi spec", gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})
	engine.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsHTML))
	})
}
