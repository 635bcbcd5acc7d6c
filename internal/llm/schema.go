package llm

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema for one kind of model answer.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustSchema compiles a schema literal and panics if it is malformed.
func MustSchema(name, literal string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(literal))
	if err != nil {
		panic(fmt.Sprintf("compile %s schema: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// SchemaError lists the fields a model answer got wrong.
type SchemaError struct {
	Schema string
	Fields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s answer failed validation: %s", e.Schema, strings.Join(e.Fields, "; "))
}

// Validate checks raw JSON against the schema.
func (s *Schema) Validate(raw []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate %s answer: %w", s.name, err)
	}
	if result.Valid() {
		return nil
	}
	fields := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		fields = append(fields, e.Field()+": "+e.Description())
	}
	return &SchemaError{Schema: s.name, Fields: fields}
}

var (
	routerSchema = MustSchema("router", `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"type": "string"},
    "topic": {"type": ["string", "null"]},
    "reasoning": {"type": "string"}
  }
}`)

	questionsSchema = MustSchema("questions", `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question_text"],
        "properties": {
          "skill": {"type": "string"},
          "topic": {"type": "string"},
          "level": {"type": "string"},
          "question_text": {"type": "string", "minLength": 1},
          "model_answer": {"type": "string"},
          "evaluation_criteria": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`)

	evaluationSchema = MustSchema("evaluation", `{
  "type": "object",
  "required": ["score", "feedback"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "is_passed": {"type": "boolean"},
    "reason": {"type": "string"},
    "feedback": {"type": "string"},
    "better_answer": {"type": ["string", "null"]}
  }
}`)

	reportSchema = MustSchema("report", `{
  "type": "object",
  "required": ["total_score", "tier_level"],
  "properties": {
    "total_score": {"type": "number"},
    "tier_level": {"type": "string"},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "study_guide": {"type": "string"}
  }
}`)
)
