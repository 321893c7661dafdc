package config

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// validateAddHeader rejects a malformed --add-header line eagerly, at
// parse time, instead of letting a bad header corrupt the wire bytes a
// connection writes later. Grounded on SPEC_FULL.md §6 EXPANSION: this
// port validates the same "Key: Value" shape httperf.c's add_header
// does, but via golang.org/x/net/http/httpguts.ValidHeaderFieldName/
// ValidHeaderFieldValue instead of hand-rolling RFC 7230 token checks.
func validateAddHeader(line string) error {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("config: --add-header %q: missing ':'", line)
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("config: --add-header %q: invalid header field name %q", line, name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("config: --add-header %q: invalid header field value", line)
	}
	return nil
}
