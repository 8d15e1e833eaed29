package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/komparu/komparu-go/internal/constants"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// Common string constants used throughout the commands package.
const (
	// ConfigDirName is the directory under $HOME holding the CLI config.
	ConfigDirName = ".kclient"

	NotAvailable = "N/A"
	Masked       = "***"

	// JSON formatting.
	defaultJSONIndent = 2
)

// Common static errors used throughout the commands package.
var (
	ErrInvalidParam      = errors.New("invalid parameter, expected key=value")
	ErrInvalidHeader     = errors.New("invalid header, expected 'Name: value'")
	ErrBodyConflict      = errors.New("use either --data or --file, not both")
	ErrUnsupportedOutput = errors.New("unsupported output format")
	ErrNoRequests        = errors.New("batch file contains no requests")
	ErrNoToken           = errors.New("authentication response carries no token")
)

// ParseParams turns key=value arguments into parameters. Dotted keys become
// nested mappings and repeated keys keep the last value.
func ParseParams(args []string) (komparu.Params, error) {
	params := komparu.Params{}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParam, arg)
		}

		path := strings.Split(key, ".")
		nested := komparu.Params{}
		current := nested

		for _, segment := range path[:len(path)-1] {
			next := komparu.Params{}
			current[segment] = next
			current = next
		}

		current[path[len(path)-1]] = value
		params = komparu.Merge(params, nested)
	}

	return params, nil
}

// ParseHeaders turns "Name: value" arguments into a header map.
func ParseHeaders(args []string) (map[string]string, error) {
	headers := make(map[string]string, len(args))

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, arg)
		}

		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return headers, nil
}

// ReadBody decodes a request body from inline JSON or a JSON/YAML file.
func ReadBody(data, file string) (komparu.Params, error) {
	if data != "" && file != "" {
		return nil, ErrBodyConflict
	}

	var raw []byte

	switch {
	case data != "":
		raw = []byte(data)
	case file != "":
		var err error

		// file is supplied by the operator on the command line
		// #nosec G304
		raw, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading body file: %w", err)
		}
	default:
		return nil, nil
	}

	var body map[string]any

	// YAML is a superset of JSON, so one decoder covers both.
	err := yaml.Unmarshal(raw, &body)
	if err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}

	return komparu.Params(body), nil
}

// Output writes value to stdout in the configured format.
func Output(value any) error {
	return WriteOutput(os.Stdout, viper.GetString("output"), value)
}

// WriteOutput writes value to w as json, yaml or a table.
func WriteOutput(w io.Writer, format string, value any) error {
	switch format {
	case constants.FormatJSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", defaultJSONIndent))

		err := encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}

		return nil
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(defaultJSONIndent)

		err := encoder.Encode(normalizeForYAML(value))
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}

		return nil
	case constants.FormatTable:
		return writeTable(w, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOutput, format)
	}
}

// normalizeForYAML round-trips through JSON so json.Number values and typed
// results render as plain YAML scalars and maps.
func normalizeForYAML(value any) any {
	data, err := json.Marshal(value)
	if err != nil {
		return value
	}

	var out any

	err = yaml.Unmarshal(data, &out)
	if err != nil {
		return value
	}

	return out
}

func writeTable(w io.Writer, value any) error {
	table := tablewriter.NewWriter(w)

	switch typed := normalizeForYAML(value).(type) {
	case []any:
		columns := tableColumns(typed)
		if len(columns) == 0 {
			_, _ = io.WriteString(w, "No results\n")

			return nil
		}

		table.Header(titles(columns)...)

		for _, item := range typed {
			row := make([]string, len(columns))

			obj, _ := item.(map[string]any)
			for i, column := range columns {
				row[i] = cell(obj[column])
			}

			_ = table.Append(row)
		}
	case map[string]any:
		table.Header("Property", "Value")

		for _, key := range sortedKeys(typed) {
			_ = table.Append(cases.Title(language.English).String(key), cell(typed[key]))
		}
	default:
		table.Header("Value")
		_ = table.Append(cell(typed))
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func tableColumns(items []any) []string {
	seen := map[string]bool{}

	var columns []string

	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		for key, value := range obj {
			if seen[key] || isNested(value) {
				continue
			}

			seen[key] = true
			columns = append(columns, key)
		}
	}

	sort.Strings(columns)

	return columns
}

func titles(columns []string) []any {
	caser := cases.Title(language.English)

	out := make([]any, len(columns))
	for i, column := range columns {
		out[i] = caser.String(strings.ReplaceAll(column, "_", " "))
	}

	return out
}

func isNested(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func cell(value any) string {
	switch typed := value.(type) {
	case nil:
		return NotAvailable
	case string:
		return typed
	case map[string]any, []any:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}

		return string(data)
	default:
		return fmt.Sprint(typed)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
