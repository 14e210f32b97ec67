package audittrail

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func parseFormat(value string) (string, error) {
	switch format := strings.ToLower(strings.TrimSpace(value)); format {
	case "", formatText:
		return formatText, nil
	case formatJSON, formatYAML:
		return format, nil
	default:
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unsupported output format %q (want text, json or yaml)", value))
	}
}

// writeStructured encodes v as an indented JSON or YAML document.
func writeStructured(out io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush yaml report: %w", err)
		}
	}
	return nil
}

// noop reports rejected input and swallows the error so the command exits
// cleanly. Other errors pass through.
func noop(out io.Writer, err error) error {
	if !apperrors.IsValidation(err) {
		return err
	}
	fmt.Fprintf(out, "Nothing to do: %v\n", err)
	return nil
}
