package agent

import (
	"context"
	"fmt"
	"strings"
)

// defaultRecoveryRetries bounds corrective messages per session.
const defaultRecoveryRetries = 2

// SectionSpec names one tagged section a stage requires in the final
// text, and optionally where to persist it once extracted.
type SectionSpec struct {
	// Tag is the bare section name; the markers are <Tag> and </Tag>.
	Tag string
	// Save persists the extracted content. Nil means extract only.
	Save func(content string) error
}

// StructuredResult is the outcome of a structured-output run: the
// final session result plus every section that could be extracted.
type StructuredResult struct {
	Result *Result
	// Sections maps tag to extracted content, accumulated across
	// corrective retries; a later retry overwrites an earlier extract.
	Sections map[string]string
	// Missing lists tags still absent after the retry budget. Empty
	// means the output was complete.
	Missing []string
	// Saved lists tags whose Save succeeded; SaveErrors carries the
	// per-tag failures.
	Saved      []string
	SaveErrors map[string]error
	// Retries is the number of corrective messages issued.
	Retries int
}

// Complete reports whether every required section was extracted.
func (r *StructuredResult) Complete() bool { return len(r.Missing) == 0 }

// RunStructured drives a session whose final text must contain a fixed
// set of tagged sections. When sections are missing it appends a
// corrective instruction to the same conversation and resumes the loop,
// up to retries corrective messages; after that it accepts whatever was
// extracted and reports the rest as missing. Extracted sections are
// handed to their Save hooks once, at the end.
func RunStructured(ctx context.Context, s *Session, task string, sections []SectionSpec, retries int) (*StructuredResult, error) {
	if retries < 0 {
		retries = defaultRecoveryRetries
	}

	res, err := s.Run(ctx, task)
	if err != nil {
		return nil, err
	}

	out := &StructuredResult{
		Result:     res,
		Sections:   make(map[string]string, len(sections)),
		SaveErrors: make(map[string]error),
	}

	for {
		missing := out.collect(res.Text, sections)
		if len(missing) == 0 {
			break
		}
		// Corrective retries only make sense for a clean completion: an
		// aborted or irregular session has no working loop to resume.
		if res.State != StateDone || res.Irregular || out.Retries >= retries {
			out.Missing = missing
			s.log.Warn("structured output incomplete",
				"session", s.id,
				"stage", s.stage,
				"missing", strings.Join(missing, ","),
				"retries", out.Retries,
			)
			break
		}

		instruction := correctiveInstruction(missing, sections, res.UsedTools)
		out.Retries++
		s.log.Info("structured output corrective retry",
			"session", s.id,
			"stage", s.stage,
			"attempt", out.Retries,
			"missing", strings.Join(missing, ","),
		)
		res, err = s.Continue(ctx, instruction)
		if err != nil {
			return nil, err
		}
		out.Result = res
	}

	for _, spec := range sections {
		content, ok := out.Sections[spec.Tag]
		if !ok || spec.Save == nil {
			continue
		}
		if err := spec.Save(content); err != nil {
			out.SaveErrors[spec.Tag] = err
			s.log.Warn("section save failed",
				"session", s.id,
				"stage", s.stage,
				"tag", spec.Tag,
				"error", err,
			)
			continue
		}
		out.Saved = append(out.Saved, spec.Tag)
	}
	return out, nil
}

// collect extracts whatever sections the text contains and returns the
// tags still missing overall.
func (r *StructuredResult) collect(text string, sections []SectionSpec) []string {
	var missing []string
	for _, spec := range sections {
		if content, ok := ExtractSection(text, spec.Tag); ok {
			r.Sections[spec.Tag] = content
			continue
		}
		if _, have := r.Sections[spec.Tag]; !have {
			missing = append(missing, spec.Tag)
		}
	}
	return missing
}

// correctiveInstruction builds the follow-up user message for a
// malformed answer. Two failure shapes get different instructions: a
// session that never called a tool skipped its mandated reads, while a
// session that did the reads merely dropped the required tags.
func correctiveInstruction(missing []string, sections []SectionSpec, usedTools bool) string {
	var b strings.Builder
	if !usedTools {
		b.WriteString("You have not used any tools yet. Use the available tools to read the source documents first, then produce your answer.\n\n")
	} else {
		b.WriteString("Your answer is missing required sections: ")
		b.WriteString(strings.Join(missing, ", "))
		b.WriteString(".\n\n")
	}
	b.WriteString("Re-emit your complete answer using exactly these tagged sections and no other format:\n")
	for _, spec := range sections {
		fmt.Fprintf(&b, "<%s>\n...\n</%s>\n", spec.Tag, spec.Tag)
	}
	return b.String()
}
