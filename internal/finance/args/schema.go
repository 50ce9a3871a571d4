package args

// Schema renders fields as the JSON Schema of a tool's input object.
func Schema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		props[f.Name] = f.schema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (f Field) schema() map[string]any {
	s := map[string]any{"type": string(f.Type)}
	if f.Description != "" {
		s["description"] = f.Description
	}
	if f.Default != nil {
		s["default"] = f.Default
	}
	if f.Min != nil {
		if f.ExclusiveMin {
			s["exclusiveMinimum"] = *f.Min
		} else {
			s["minimum"] = *f.Min
		}
	}
	if f.Max != nil {
		if f.ExclusiveMax {
			s["exclusiveMaximum"] = *f.Max
		} else {
			s["maximum"] = *f.Max
		}
	}
	if len(f.Enum) > 0 {
		s["enum"] = f.Enum
	}
	if f.MaxLength > 0 {
		s["maxLength"] = f.MaxLength
	}

	switch f.Type {
	case TypeString:
		s["minLength"] = 1
	case TypeArray:
		s["minItems"] = 1
		if f.Items != nil {
			s["items"] = f.Items.schema()
		}
	case TypeObject:
		s["minProperties"] = 1
		if f.Record != nil {
			s["additionalProperties"] = Schema(f.Record)
		} else {
			s["additionalProperties"] = map[string]any{
				"type": []string{"string", "number", "boolean"},
			}
		}
	}
	return s
}
