package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const responseSchemaJSON = `{
  "type": "object",
  "required": ["type", "data"],
  "properties": {
    "type": {"enum": ["receipt", "business_card"]},
    "data": {"type": "object"}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "receipt"}}},
      "then": {"properties": {"data": {
        "required": ["store_name", "total_amount", "transaction_date"],
        "properties": {
          "store_name": {"$ref": "#/$defs/value"},
          "total_amount": {"$ref": "#/$defs/value"},
          "transaction_date": {"$ref": "#/$defs/value"}
        }
      }}}
    },
    {
      "if": {"properties": {"type": {"const": "business_card"}}},
      "then": {"properties": {"data": {
        "required": ["name", "company", "title", "phone", "email"],
        "properties": {
          "name": {"$ref": "#/$defs/value"},
          "company": {"$ref": "#/$defs/value"},
          "title": {"$ref": "#/$defs/value"},
          "phone": {"$ref": "#/$defs/value"},
          "email": {"$ref": "#/$defs/value"}
        }
      }}}
    }
  ],
  "$defs": {
    "value": {"type": ["string", "number"]}
  }
}`

var responseSchema = jsonschema.MustCompileString("response.json", responseSchemaJSON)

// ParseResponse turns the model's text reply into a Result.
// A leading markdown code fence is stripped before the JSON is decoded and validated.
func ParseResponse(text string) (Result, error) {
	text = stripCodeFence(text)
	if text == "" {
		return Result{}, fmt.Errorf("empty response from model")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("decoding json: %w", err)
	}
	if dec.More() {
		return Result{}, fmt.Errorf("decoding json: unexpected data after object")
	}

	if err := responseSchema.Validate(doc); err != nil {
		return Result{}, fmt.Errorf("response does not match schema: %w", err)
	}

	// validated above, so the shape is known
	obj := doc.(map[string]any)
	kind := Kind(obj["type"].(string))
	data := obj["data"].(map[string]any)

	fields := make(map[string]string, len(FieldsFor(kind)))
	for _, name := range FieldsFor(kind) {
		switch v := data[name].(type) {
		case string:
			fields[name] = v
		case json.Number:
			fields[name] = v.String()
		}
	}

	return Result{Kind: kind, Fields: fields}, nil
}

// stripCodeFence removes a surrounding markdown fence such as ```json ... ```
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")

	// drop the language tag on the opening line
	if i := strings.IndexByte(text, '\n'); i >= 0 && isFenceTag(text[:i]) {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}

	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func isFenceTag(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
