package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 1 << 20

// The browser client posts raw input values, so integers may arrive as
// numeric strings. An empty duration string counts as missing.
const (
	addTodoSchema = `{
  "type": "object",
  "properties": {
    "text": {"type": "string"},
    "duration_hours": {"$ref": "#/$defs/count"},
    "duration_minutes": {"$ref": "#/$defs/count"}
  },
  "$defs": {
    "count": {
      "anyOf": [
        {"type": "integer", "minimum": 0, "maximum": 2147483647},
        {"type": "string", "pattern": "^\\s*[0-9]{0,10}\\s*$"},
        {"type": "null"}
      ]
    }
  }
}`

	todoIDSchema = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {
      "anyOf": [
        {"type": "integer", "minimum": 1},
        {"type": "string", "pattern": "^\\s*[1-9][0-9]*\\s*$"}
      ]
    }
  }
}`

)

var errInvalidJSON = errors.New("invalid JSON payload")

const schemaBase = "https://focus-todo.local/schemas/"

type schemas struct {
	addTodo *jsonschema.Schema
	todoID  *jsonschema.Schema
}

func compileSchemas() (schemas, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	sources := map[string]string{
		"add_todo.json": addTodoSchema,
		"todo_id.json":  todoIDSchema,
	}
	for name, src := range sources {
		if err := compiler.AddResource(schemaBase+name, strings.NewReader(src)); err != nil {
			return schemas{}, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	var s schemas
	var err error
	if s.addTodo, err = compiler.Compile(schemaBase + "add_todo.json"); err != nil {
		return schemas{}, fmt.Errorf("compile add_todo schema: %w", err)
	}
	if s.todoID, err = compiler.Compile(schemaBase + "todo_id.json"); err != nil {
		return schemas{}, fmt.Errorf("compile todo_id schema: %w", err)
	}
	return s, nil
}

// decodeValid reads the body, validates it against schema and decodes it
// into dst. Validation failures come back as *requestError.
func decodeValid(body io.Reader, schema *jsonschema.Schema, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return errInvalidJSON
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return errInvalidJSON
	}
	if err := schema.Validate(doc); err != nil {
		return schemaError(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}

type requestError struct {
	Path    string
	Message string
}

func (e *requestError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid %s: %s", e.Path, e.Message)
	}
	return "invalid request: " + e.Message
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &requestError{Message: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := strings.TrimPrefix(leaf.InstanceLocation, "/")
	return &requestError{Path: strings.ReplaceAll(path, "/", "."), Message: leaf.Message}
}

// flexInt accepts a JSON integer or a numeric string. Empty strings and
// null leave it unset.
type flexInt struct {
	Value int64
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	f.Value, f.Set = v, true
	return nil
}

func (f flexInt) IntPtr() *int {
	if !f.Set {
		return nil
	}
	v := int(f.Value)
	return &v
}

type addTodoRequest struct {
	Text            string  `json:"text"`
	DurationHours   flexInt `json:"duration_hours"`
	DurationMinutes flexInt `json:"duration_minutes"`
}

type todoIDRequest struct {
	ID flexInt `json:"id"`
}

type focusTimeRequest struct {
	ID          flexInt         `json:"id"`
	FocusedTime json.RawMessage `json:"focused_time"`
}
