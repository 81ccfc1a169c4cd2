// Package prompts contains the system prompts and user-message builders for
// the four pipeline stages.
//
// Prompt text is Go code rather than config files because it is program
// logic: builders use fmt.Sprintf interpolation, the tag names in the
// extraction contract must match what the recovery controller extracts, and
// the tool names mentioned in the text must match what each stage registers.
// Convention: one file per stage with an exported system prompt and a
// builder that accepts the dynamic parts and returns the interpolated
// message.
package prompts

// Company identifies one company under coverage, as the prompts render it.
type Company struct {
	Name   string
	Ticker string
}
