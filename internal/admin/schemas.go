package admin

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

const uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`

var schemaSources = map[string]string{
	"create": `{
		"type": "object",
		"required": ["name"],
		"additionalProperties": false,
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 200},
			"path": {"type": "array", "maxItems": 6, "items": {"type": "string", "pattern": "` + uuidPattern + `"}},
			"position": {"type": "integer", "minimum": 0, "maximum": 2147483647},
			"status": {"enum": ["active", "inactive", "draft"]}
		}
	}`,
	"update": `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": false,
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 200},
			"position": {"type": "integer", "minimum": 1, "maximum": 2147483647}
		}
	}`,
	"status": `{
		"type": "object",
		"required": ["status"],
		"additionalProperties": false,
		"properties": {
			"status": {"enum": ["active", "inactive", "draft"]}
		}
	}`,
	"reorder": `{
		"type": "object",
		"required": ["updates"],
		"additionalProperties": false,
		"properties": {
			"updates": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "position"],
					"additionalProperties": false,
					"properties": {
						"id": {"type": "string"},
						"position": {"type": "integer", "minimum": 1, "maximum": 2147483647}
					}
				}
			}
		}
	}`,
	"details": `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"description": {"type": "string", "maxLength": 4000},
			"duration_minutes": {"type": "integer", "minimum": 0},
			"total_marks": {"type": "integer", "minimum": 0}
		}
	}`,
}

func compileSchemas() (map[string]*gojsonschema.Schema, error) {
	out := make(map[string]*gojsonschema.Schema, len(schemaSources))
	for name, src := range schemaSources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// validateBody checks body against schema and returns an invalid-argument
// error listing every violation.
func validateBody(schema *gojsonschema.Schema, body []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: malformed JSON body", hierarchy.ErrInvalidArgument)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", hierarchy.ErrInvalidArgument, strings.Join(msgs, "; "))
}
