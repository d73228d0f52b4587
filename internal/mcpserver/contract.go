package mcpserver

// ProfileFormatURI is the resource URI of ProfileFormat.
const ProfileFormatURI = "cfgswap://profile-format"

// ProfileFormat describes what a stored profile is and how cfgswap decides
// which profile is installed.
const ProfileFormat = `# cfgswap Profile Format

A profile is a named, complete copy of the target settings file
(by default ~/.claude/settings.json). Applying a profile replaces the
whole file; nothing is merged.

## Content

- Content MUST be a single JSON document. Anything else is rejected.
- Key order and whitespace do not matter. Two profiles whose documents are
  equal after sorting object keys are the same profile for matching.
- Array order DOES matter.

## Names

1. 1 to 100 characters after trimming surrounding whitespace.
2. No ` + "`/`" + `, ` + "`\\`" + `, ` + "`..`" + `, or control characters.
3. Unique across all profiles.

## Matching

The active profile is the one whose canonical hash equals the hash of the
target file. When several profiles share a hash, the one just applied wins;
otherwise the profile already marked active keeps the flag, else the first
by name. A missing or unparsable target file means no profile is active.

## Displayed fields

` + "`env.ANTHROPIC_BASE_URL`" + ` is shown as-is. ` + "`env.ANTHROPIC_AUTH_TOKEN`" + `
(or ` + "`env.ANTHROPIC_API_KEY`" + `) is shown masked as the first 8 and
last 4 characters.
`
