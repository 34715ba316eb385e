package payload

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"
)

const (
	resultEnvelopeKeyConstant      = "result"
	entryDescriptionTemplate       = "%s(%T)=%v"
	entryDescriptionSeparator      = ", "
	nilEntryDescriptionTemplate    = "%s(nil)"
	defaultWrapperTokenConstant    = "pluginresultbundle"
	defaultResultCodeKeyConstant   = "result_code"
	exclusionKeywordLengthConstant = "length"
	exclusionKeywordSizeConstant   = "size"
	exclusionKeywordCountConstant  = "count"
	exclusionKeywordOriginConstant = "original"
)

// ReplyPayload is an opaque mapping of helper-defined keys to untyped values.
type ReplyPayload map[string]any

// ResolverConfiguration tunes the heuristics applied while matching reply keys.
type ResolverConfiguration struct {
	ExclusionKeywords   []string `mapstructure:"exclusion_keywords"`
	WrapperTokens       []string `mapstructure:"wrapper_tokens"`
	AcknowledgementKeys []string `mapstructure:"acknowledgement_keys"`
}

// DefaultResolverConfiguration returns the heuristics observed to work across helper versions.
func DefaultResolverConfiguration() ResolverConfiguration {
	return ResolverConfiguration{
		ExclusionKeywords: []string{
			exclusionKeywordLengthConstant,
			exclusionKeywordSizeConstant,
			exclusionKeywordCountConstant,
			exclusionKeywordOriginConstant,
		},
		WrapperTokens:       []string{defaultWrapperTokenConstant},
		AcknowledgementKeys: []string{resultEnvelopeKeyConstant, defaultResultCodeKeyConstant},
	}
}

// KeyResolver performs tolerant lookups of logical fields inside reply payloads.
type KeyResolver struct {
	exclusionKeywords   []string
	wrapperTokens       []string
	acknowledgementKeys []string
}

type normalizedEntry struct {
	rawKey        string
	normalizedKey string
	value         any
}

// NewKeyResolver builds a resolver from the provided configuration. Empty lists fall back to defaults.
func NewKeyResolver(configuration ResolverConfiguration) *KeyResolver {
	defaults := DefaultResolverConfiguration()
	exclusionKeywords := normalizeAll(configuration.ExclusionKeywords)
	if configuration.ExclusionKeywords == nil {
		exclusionKeywords = normalizeAll(defaults.ExclusionKeywords)
	}
	wrapperTokens := normalizeAll(configuration.WrapperTokens)
	if len(wrapperTokens) == 0 {
		wrapperTokens = normalizeAll(defaults.WrapperTokens)
	}
	acknowledgementKeys := normalizeAll(configuration.AcknowledgementKeys)
	if len(acknowledgementKeys) == 0 {
		acknowledgementKeys = normalizeAll(defaults.AcknowledgementKeys)
	}

	return &KeyResolver{
		exclusionKeywords:   exclusionKeywords,
		wrapperTokens:       wrapperTokens,
		acknowledgementKeys: acknowledgementKeys,
	}
}

// Normalize lowercases a key and strips every character that is not a letter or digit.
func Normalize(rawKey string) string {
	var builder strings.Builder
	builder.Grow(len(rawKey))
	for _, character := range strings.ToLower(rawKey) {
		if unicode.IsLetter(character) || unicode.IsDigit(character) {
			builder.WriteRune(character)
		}
	}
	return builder.String()
}

// ResolveString returns the first string value matching candidateNames, or an empty string.
// Exact matches only accept string values; substring matches accept any scalar rendered as text.
func (resolver *KeyResolver) ResolveString(payload ReplyPayload, candidateNames []string) string {
	entries := normalizeEntries(payload)
	normalizedCandidates := normalizeAll(candidateNames)

	for _, candidate := range normalizedCandidates {
		for _, entry := range entries {
			if entry.normalizedKey != candidate {
				continue
			}
			if textValue, isText := stringValue(entry.value); isText {
				return textValue
			}
		}
	}

	for _, candidate := range normalizedCandidates {
		for _, entry := range entries {
			if resolver.isExcluded(entry.normalizedKey) || !strings.Contains(entry.normalizedKey, candidate) {
				continue
			}
			if entry.value == nil {
				continue
			}
			if _, isMapping := AsMapping(entry.value); isMapping {
				continue
			}
			renderedValue, renderError := cast.ToStringE(entry.value)
			if renderError != nil {
				continue
			}
			return renderedValue
		}
	}

	return ""
}

// ResolveInt returns the first integer value matching candidateNames, or defaultValue.
func (resolver *KeyResolver) ResolveInt(payload ReplyPayload, candidateNames []string, defaultValue int) int {
	resolvedValue, found := resolver.LookupInt(payload, candidateNames)
	if !found {
		return defaultValue
	}
	return resolvedValue
}

// LookupInt reports the first integer value matching candidateNames using the exact and substring passes.
// Matching keys whose values are not integers are skipped and scanning continues.
func (resolver *KeyResolver) LookupInt(payload ReplyPayload, candidateNames []string) (int, bool) {
	entries := normalizeEntries(payload)
	normalizedCandidates := normalizeAll(candidateNames)

	if resolvedValue, found := lookupExactInt(entries, normalizedCandidates); found {
		return resolvedValue, true
	}

	for _, candidate := range normalizedCandidates {
		for _, entry := range entries {
			if resolver.isExcluded(entry.normalizedKey) || !strings.Contains(entry.normalizedKey, candidate) {
				continue
			}
			if integerResult, isInteger := IntegerValue(entry.value); isInteger {
				return integerResult, true
			}
		}
	}

	return 0, false
}

// ResolveIntExact reports the first integer value whose normalized key equals one of exactNames.
func (resolver *KeyResolver) ResolveIntExact(payload ReplyPayload, exactNames []string) (int, bool) {
	return lookupExactInt(normalizeEntries(payload), normalizeAll(exactNames))
}

// ResolvePayloadEnvelope returns the nested mapping most likely holding the command result.
// A mapping stored under a key normalized to "result" or containing a wrapper token wins;
// otherwise the reply itself is treated as the payload.
func (resolver *KeyResolver) ResolvePayloadEnvelope(rawReply ReplyPayload) ReplyPayload {
	for _, entry := range normalizeEntries(rawReply) {
		if !resolver.isEnvelopeKey(entry.normalizedKey) {
			continue
		}
		if nestedPayload, isMapping := AsMapping(entry.value); isMapping {
			return nestedPayload
		}
	}

	if rawReply == nil {
		return ReplyPayload{}
	}
	return rawReply
}

// IsAcknowledgementKey reports whether rawKey names a bare acknowledgement or result-code field.
func (resolver *KeyResolver) IsAcknowledgementKey(rawKey string) bool {
	return slices.Contains(resolver.acknowledgementKeys, Normalize(rawKey))
}

// AcknowledgementKeys returns the normalized acknowledgement key names.
func (resolver *KeyResolver) AcknowledgementKeys() []string {
	return append([]string{}, resolver.acknowledgementKeys...)
}

func (resolver *KeyResolver) isEnvelopeKey(normalizedKey string) bool {
	if normalizedKey == resultEnvelopeKeyConstant {
		return true
	}
	for _, wrapperToken := range resolver.wrapperTokens {
		if strings.Contains(normalizedKey, wrapperToken) {
			return true
		}
	}
	return false
}

func (resolver *KeyResolver) isExcluded(normalizedKey string) bool {
	for _, exclusionKeyword := range resolver.exclusionKeywords {
		if strings.Contains(normalizedKey, exclusionKeyword) {
			return true
		}
	}
	return false
}

// DescribeEntries renders payload entries as key(type)=value pairs sorted by key.
func DescribeEntries(payload ReplyPayload) string {
	descriptions := make([]string, 0, len(payload))
	for _, rawKey := range slices.Sorted(maps.Keys(payload)) {
		value := payload[rawKey]
		if value == nil {
			descriptions = append(descriptions, fmt.Sprintf(nilEntryDescriptionTemplate, rawKey))
			continue
		}
		descriptions = append(descriptions, fmt.Sprintf(entryDescriptionTemplate, rawKey, value, value))
	}
	return strings.Join(descriptions, entryDescriptionSeparator)
}

// AsMapping converts nested mapping values into a ReplyPayload.
func AsMapping(value any) (ReplyPayload, bool) {
	switch typedValue := value.(type) {
	case ReplyPayload:
		return typedValue, true
	case map[string]any:
		return ReplyPayload(typedValue), true
	case map[string]string:
		converted := make(ReplyPayload, len(typedValue))
		for key, nestedValue := range typedValue {
			converted[key] = nestedValue
		}
		return converted, true
	default:
		return nil, false
	}
}

// IntegerValue accepts native integers, integral floats, JSON numbers, and decimal-integer strings.
func IntegerValue(value any) (int, bool) {
	switch typedValue := value.(type) {
	case int:
		return typedValue, true
	case int8:
		return int(typedValue), true
	case int16:
		return int(typedValue), true
	case int32:
		return int(typedValue), true
	case int64:
		return int(typedValue), true
	case uint8:
		return int(typedValue), true
	case uint16:
		return int(typedValue), true
	case uint32:
		return int(typedValue), true
	case uint:
		if typedValue > math.MaxInt {
			return 0, false
		}
		return int(typedValue), true
	case uint64:
		if typedValue > math.MaxInt {
			return 0, false
		}
		return int(typedValue), true
	case float32:
		return integralFloat(float64(typedValue))
	case float64:
		return integralFloat(typedValue)
	case json.Number:
		if parsedInteger, parseError := typedValue.Int64(); parseError == nil {
			return int(parsedInteger), true
		}
		if parsedFloat, parseError := typedValue.Float64(); parseError == nil {
			return integralFloat(parsedFloat)
		}
		return 0, false
	case string:
		parsedInteger, parseError := strconv.Atoi(strings.TrimSpace(typedValue))
		if parseError != nil {
			return 0, false
		}
		return parsedInteger, true
	default:
		return 0, false
	}
}

func integralFloat(value float64) (int, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) || math.Trunc(value) != value {
		return 0, false
	}
	return int(value), true
}

func stringValue(value any) (string, bool) {
	switch typedValue := value.(type) {
	case string:
		return typedValue, true
	case []byte:
		return string(typedValue), true
	default:
		return "", false
	}
}

func lookupExactInt(entries []normalizedEntry, normalizedCandidates []string) (int, bool) {
	for _, candidate := range normalizedCandidates {
		for _, entry := range entries {
			if entry.normalizedKey != candidate {
				continue
			}
			if integerResult, isInteger := IntegerValue(entry.value); isInteger {
				return integerResult, true
			}
		}
	}
	return 0, false
}

// normalizeEntries orders entries by raw key so resolution never depends on map iteration order.
func normalizeEntries(payload ReplyPayload) []normalizedEntry {
	entries := make([]normalizedEntry, 0, len(payload))
	for _, rawKey := range slices.Sorted(maps.Keys(payload)) {
		entries = append(entries, normalizedEntry{
			rawKey:        rawKey,
			normalizedKey: Normalize(rawKey),
			value:         payload[rawKey],
		})
	}
	return entries
}

func normalizeAll(rawValues []string) []string {
	normalizedValues := make([]string, 0, len(rawValues))
	for _, rawValue := range rawValues {
		normalizedValue := Normalize(rawValue)
		if len(normalizedValue) == 0 {
			continue
		}
		normalizedValues = append(normalizedValues, normalizedValue)
	}
	return normalizedValues
}
