package config

import (
	"fmt"
	"strings"
)

// NormalizationResult captures adjustments made by NormalizeConfig.
type NormalizationResult struct{ Warnings []string }

// NormalizeConfig canonicalizes enumerated and list fields before defaults
// are applied. Unknown enum values are left as-is for validation to reject.
func NormalizeConfig(c *Config) (*NormalizationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config nil")
	}
	res := &NormalizationResult{}

	if m := Mode(normalizeEnum(string(c.Mode))); m != c.Mode {
		res.Warnings = append(res.Warnings, warnChanged("mode", c.Mode, m))
		c.Mode = m
	}
	if f := ModuleFormat(normalizeEnum(string(c.ServerModuleFormat))); f != c.ServerModuleFormat {
		res.Warnings = append(res.Warnings, warnChanged("server_module_format", c.ServerModuleFormat, f))
		c.ServerModuleFormat = f
	}
	c.Dev.WarningFilters = normalizeStringSlice("dev.warning_filters", c.Dev.WarningFilters, res)
	return res, nil
}

func normalizeEnum(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// normalizeStringSlice trims and dedupes in, dropping empty entries.
func normalizeStringSlice(label string, in []string, res *NormalizationResult) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	changed := false
	for _, v := range in {
		t := strings.TrimSpace(v)
		if t == "" {
			changed = true
			continue
		}
		if _, ok := seen[t]; ok {
			changed = true
			continue
		}
		if t != v {
			changed = true
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if changed {
		res.Warnings = append(res.Warnings, fmt.Sprintf("normalized %s list (%d -> %d entries)", label, len(in), len(out)))
	}
	return out
}

func warnChanged(field string, from, to any) string {
	return fmt.Sprintf("normalized %s from '%v' to '%v'", field, from, to)
}
