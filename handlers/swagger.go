package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>draftledger documents - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "draftledger-documents", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Version": { "type": "object", "properties": {
        "id": {"type":"string"}, "documentId": {"type":"string"}, "versionNumber": {"type":"integer"},
        "content": {"type":"string"}, "contentFormat": {"type":"string","enum":["markdown","plain","html"]},
        "checksumSha256": {"type":"string"}, "createdBy": {"type":"string"}, "revertedFrom": {"type":"integer"},
        "createdAt": {"type":"string","format":"date-time"} } },
      "Document": { "type": "object", "properties": {
        "id": {"type":"string"}, "ownerId": {"type":"string"}, "title": {"type":"string"},
        "type": {"type":"string","enum":["resume","letter","sop"]},
        "currentVersionId": {"type":"string"}, "currentVersionNumber": {"type":"integer"},
        "versions": {"type":"array","items":{"$ref":"#/components/schemas/Version"}},
        "createdAt": {"type":"string","format":"date-time"}, "updatedAt": {"type":"string","format":"date-time"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/documents": {
      "get": {
        "summary": "List the caller's documents, most recently updated first",
        "parameters": [ { "name": "type", "in": "query", "required": false, "schema": {"type":"string","enum":["resume","letter","sop"]} } ],
        "responses": { "200": { "description": "document summaries" }, "400": { "description": "unknown type" } }
      },
      "post": {
        "summary": "Create a document with its first version",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["type"],"properties":{"title":{"type":"string"},"type":{"type":"string"},"content":{"type":"string"},"contentFormat":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created", "content": {"application/json":{"schema":{"$ref":"#/components/schemas/Document"}}} }, "400": { "description": "invalid input" } }
      }
    },
    "/api/documents/upload": {
      "post": { "summary": "Create a document from a multipart upload (file or content field)", "responses": { "201": { "description": "created" }, "400": { "description": "invalid input" }, "413": { "description": "file too large" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document with every version, newest first", "responses": { "200": { "description": "document" }, "403": { "description": "not the owner" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Rename a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"}}}}}}, "responses": { "200": { "description": "document" } } },
      "delete": { "summary": "Soft delete a document", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{id}/versions": {
      "get": { "summary": "List versions, newest first", "responses": { "200": { "description": "versions" } } },
      "post": { "summary": "Save new content as the next version", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"},"contentFormat":{"type":"string"}}}}}}, "responses": { "201": { "description": "document" } } }
    },
    "/api/documents/{id}/versions/{number}": {
      "get": { "summary": "Preview one version without changing the current version", "responses": { "200": { "description": "version" }, "404": { "description": "version not found" } } }
    },
    "/api/documents/{id}/versions/{number}/export": {
      "get": { "summary": "Presigned download link for an archived version", "responses": { "200": { "description": "url" }, "503": { "description": "archive unavailable" } } }
    },
    "/api/documents/{id}/revert": {
      "post": { "summary": "Copy an old version into a new current version", "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["versionNumber"],"properties":{"versionNumber":{"type":"integer"}}}}}}, "responses": { "200": { "description": "document" }, "404": { "description": "version not found" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
