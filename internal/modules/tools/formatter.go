package tools

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// MaxResultChars caps formatted tool output handed back to the model.
const MaxResultChars = 50000

const noResults = "No results found."

// FormatResult renders a tool's raw return value for the model: lists as a
// numbered summary, mappings as key: value lines, nil as a no-results notice.
// Output beyond MaxResultChars is cut and followed by a truncation marker.
func FormatResult(v any) string {
	return truncate(format(v))
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxResultChars {
		return s
	}
	omitted := len(runes) - MaxResultChars
	return string(runes[:MaxResultChars]) + fmt.Sprintf("\n[Result truncated: %d characters omitted]", omitted)
}

func format(v any) string {
	if v == nil {
		return noResults
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return "Error: " + x.Error()
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return noResults
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return formatList(rv)
	case reflect.Map:
		return strings.Join(formatMap(rv, 0), "\n")
	}
	return fmt.Sprint(rv.Interface())
}

func formatList(rv reflect.Value) string {
	n := rv.Len()
	if n == 0 {
		return noResults
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", n)
	for i := 0; i < n; i++ {
		item := rv.Index(i)
		for item.Kind() == reflect.Interface || item.Kind() == reflect.Pointer {
			if item.IsNil() {
				break
			}
			item = item.Elem()
		}
		b.WriteString("\n")
		if item.Kind() == reflect.Map {
			lines := formatMap(item, 1)
			fmt.Fprintf(&b, "%d.\n%s", i+1, strings.Join(lines, "\n"))
		} else {
			fmt.Fprintf(&b, "%d. %s", i+1, format(valueOf(item)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMap(rv reflect.Value, depth int) []string {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	indent := strings.Repeat("  ", depth)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		val := rv.MapIndex(k)
		for val.Kind() == reflect.Interface || val.Kind() == reflect.Pointer {
			if val.IsNil() {
				break
			}
			val = val.Elem()
		}
		key := fmt.Sprint(k.Interface())
		if val.Kind() == reflect.Map {
			lines = append(lines, indent+key+":")
			lines = append(lines, formatMap(val, depth+1)...)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", indent, key, formatScalar(val)))
	}
	return lines
}

func formatScalar(rv reflect.Value) string {
	if !rv.IsValid() {
		return "null"
	}
	if (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) && rv.IsNil() {
		return "null"
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatScalar(rv.Index(i))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(rv.Interface())
}

func valueOf(rv reflect.Value) any {
	if !rv.IsValid() || !rv.CanInterface() {
		return nil
	}
	if (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) && rv.IsNil() {
		return nil
	}
	return rv.Interface()
}
