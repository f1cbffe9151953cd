package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRulesetFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ruleset.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateRulesetFileValid(t *testing.T) {
	path := writeRulesetFile(t, `{
		"name": "GPU premiums",
		"priority": 10,
		"definition": {
			"scope_conditions": {
				"field_name": "gpu_model",
				"field_type": "string",
				"operator": "is_not_empty"
			},
			"groups": [
				{
					"name": "vram",
					"rules": [
						{
							"name": "vram premium",
							"is_active": true,
							"condition_tree": {
								"field_name": "gpu_vram_gb",
								"field_type": "number",
								"operator": "greater_than_or_equal",
								"value": 12
							},
							"action": {"type": "fixed", "amount": 100}
						}
					]
				}
			]
		}
	}`)

	result, err := ValidateRulesetFile(path)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 1, result.Rules)
}

func TestValidateRulesetFileErrors(t *testing.T) {
	path := writeRulesetFile(t, `{
		"priority": 10,
		"definition": {
			"groups": [
				{
					"rules": [
						{
							"condition_tree": {
								"field_name": "gpu_model",
								"field_type": "string",
								"operator": "matches_regex"
							},
							"action": {"type": "percentage", "percentage": 0.1}
						}
					]
				}
			]
		}
	}`)

	result, err := ValidateRulesetFile(path)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "ruleset has no name")
	assert.Contains(t, result.Errors, "group 1 has no name")

	joined := ""
	for _, e := range result.Errors {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "unknown operator")
	assert.Contains(t, joined, "percentage action requires a base field")
}

func TestValidateRulesetFileWarnsOnCollapse(t *testing.T) {
	path := writeRulesetFile(t, `{
		"name": "edge cases",
		"definition": {
			"groups": [
				{"name": "empty group", "rules": []},
				{
					"name": "collapsing",
					"rules": [
						{
							"name": "always on",
							"is_active": true,
							"condition_tree": {"logical_operator": "and", "children": []},
							"action": {"type": "fixed", "amount": 5}
						}
					]
				}
			]
		}
	}`)

	result, err := ValidateRulesetFile(path)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Warnings)
	joined := ""
	for _, w := range result.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "has no rules")
	assert.Contains(t, joined, "collapses to match-everything")
}

func TestValidateRulesetFileBadJSON(t *testing.T) {
	path := writeRulesetFile(t, `{"name":`)

	result, err := ValidateRulesetFile(path)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "invalid JSON")
}

func TestValidateRulesetFileMissing(t *testing.T) {
	_, err := ValidateRulesetFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
