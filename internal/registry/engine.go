package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EngineKind names the transformation engine a patch set is applied with.
// The set is closed: RawDiff, Structural and Semantic.
type EngineKind string

const (
	// EngineRawDiff applies unified diffs with git apply.
	EngineRawDiff EngineKind = "patch"
	// EngineStructural runs ast-grep rules.
	EngineStructural EngineKind = "ast_grep"
	// EngineSemantic runs coccinelle semantic patches.
	EngineSemantic EngineKind = "coccinelle"
)

// EngineKinds lists every supported kind in display order.
var EngineKinds = []EngineKind{EngineRawDiff, EngineStructural, EngineSemantic}

var engineAliases = map[string]EngineKind{
	"patch":      EngineRawDiff,
	"raw_diff":   EngineRawDiff,
	"diff":       EngineRawDiff,
	"ast_grep":   EngineStructural,
	"structural": EngineStructural,
	"sg":         EngineStructural,
	"coccinelle": EngineSemantic,
	"semantic":   EngineSemantic,
	"cocci":      EngineSemantic,
}

// ParseEngineKind resolves a name or alias to its canonical kind.
func ParseEngineKind(raw string) (EngineKind, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	if kind, ok := engineAliases[key]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("unknown engine %q", raw)
}

// Valid reports whether k is one of the supported kinds.
func (k EngineKind) Valid() bool {
	switch k {
	case EngineRawDiff, EngineStructural, EngineSemantic:
		return true
	}
	return false
}

func (k EngineKind) String() string { return string(k) }

// UnmarshalJSON accepts canonical names and their aliases.
func (k *EngineKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	kind, err := ParseEngineKind(raw)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
