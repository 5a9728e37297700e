package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// RecoveryStrategy names the parsing strategy that produced a usable value.
type RecoveryStrategy string

const (
	RecoveryDirect          RecoveryStrategy = "direct"
	RecoveryQuoteNormalized RecoveryStrategy = "quote_normalized"
	RecoveryLiteralRepair   RecoveryStrategy = "literal_repair"
	RecoveryFieldExtraction RecoveryStrategy = "field_extraction"
)

var (
	fencedBlockRe    = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	trailingCommaRe  = regexp.MustCompile(`,\s*([}\]])`)
	pythonLiteralRe  = regexp.MustCompile(`\b(True|False|None)\b`)
	fieldArrayReFmt  = `["']%s["']\s*:\s*\[(.*?)\]`
	fieldStringReFmt = `["']%s["']\s*:\s*["']((?:[^"'\\]|\\.)*)["']`
	fieldScalarReFmt = `["']%s["']\s*:\s*(-?[0-9]+(?:\.[0-9]+)?|true|false|null)`
	quotedItemRe     = regexp.MustCompile(`["']((?:[^"'\\]|\\.)+)["']`)
)

// Recoverer parses structured JSON out of free-form model output. Models
// wrap JSON in markdown fences, use single quotes, or emit Python literals;
// the strategies below are tried in order from cheapest to most invasive.
type Recoverer struct {
	logger *zap.Logger
}

// NewRecoverer creates a Recoverer. A nil logger falls back to a no-op.
func NewRecoverer(logger *zap.Logger) *Recoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recoverer{logger: logger.With(zap.String("component", "structured_recovery"))}
}

// Unmarshal extracts a JSON value from raw model output into target.
// It returns the strategy that succeeded. When keys are given, the final
// strategy reassembles an object from per-key regex matches; without keys
// only the first three strategies run. On total failure the error carries
// the MALFORMED_OUTPUT code and a snippet of the raw output.
func (r *Recoverer) Unmarshal(raw string, target any, keys ...string) (RecoveryStrategy, error) {
	cleaned := stripFences(raw)

	if err := json.Unmarshal([]byte(cleaned), target); err == nil {
		return RecoveryDirect, nil
	}

	normalized := strings.ReplaceAll(cleaned, "'", `"`)
	if err := json.Unmarshal([]byte(normalized), target); err == nil {
		r.logger.Debug("recovered output via quote normalization")
		return RecoveryQuoteNormalized, nil
	}

	repaired := repairLiterals(normalized)
	if err := json.Unmarshal([]byte(repaired), target); err == nil {
		r.logger.Debug("recovered output via literal repair")
		return RecoveryLiteralRepair, nil
	}

	if len(keys) > 0 {
		if obj, ok := extractFields(cleaned, keys); ok {
			if err := json.Unmarshal(obj, target); err == nil {
				r.logger.Debug("recovered output via field extraction",
					zap.Int("keys", len(keys)))
				return RecoveryFieldExtraction, nil
			}
		}
	}

	return "", types.NewError(types.ErrMalformedOutput,
		fmt.Sprintf("unparseable model output: %s", snippet(raw, 200)))
}

// stripFences removes a markdown code fence if present and narrows the
// text to the outermost JSON object or array.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}

// repairLiterals fixes Python-style literals and trailing commas.
func repairLiterals(s string) string {
	s = pythonLiteralRe.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case "True":
			return "true"
		case "False":
			return "false"
		default:
			return "null"
		}
	})
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// extractFields rebuilds a JSON object by matching each expected key
// individually. Returns false when no key matched at all.
func extractFields(s string, keys []string) (json.RawMessage, bool) {
	fields := make(map[string]json.RawMessage)
	for _, key := range keys {
		quoted := regexp.QuoteMeta(key)

		if re, err := regexp.Compile(fmt.Sprintf(fieldArrayReFmt, quoted)); err == nil {
			if m := re.FindStringSubmatch(s); m != nil {
				items := quotedItemRe.FindAllStringSubmatch(m[1], -1)
				vals := make([]string, 0, len(items))
				for _, it := range items {
					vals = append(vals, it[1])
				}
				if b, err := json.Marshal(vals); err == nil {
					fields[key] = b
					continue
				}
			}
		}
		if re, err := regexp.Compile(fmt.Sprintf(fieldStringReFmt, quoted)); err == nil {
			if m := re.FindStringSubmatch(s); m != nil {
				if b, err := json.Marshal(m[1]); err == nil {
					fields[key] = b
					continue
				}
			}
		}
		if re, err := regexp.Compile(fmt.Sprintf(fieldScalarReFmt, quoted)); err == nil {
			if m := re.FindStringSubmatch(s); m != nil {
				v := strings.ToLower(m[1])
				if v == "none" {
					v = "null"
				}
				fields[key] = json.RawMessage(v)
			}
		}
	}
	if len(fields) == 0 {
		return nil, false
	}
	obj, err := json.Marshal(fields)
	if err != nil {
		return nil, false
	}
	return obj, true
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
