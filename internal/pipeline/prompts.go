package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/proposal/internal/model"
)

const extractionSystemPrompt = `You are an expert at analyzing freelance job postings.
Extract the facts a freelancer needs to write a tailored proposal.
- Focus on the client's core problem and the goal they want to reach.
- List every tool, platform or technology the posting names.
- Pick details from the posting that a reply can reference to show it was read.
- Classify the posting tone as exactly one of: formal, casual, technical.
- Order priorities from most to least important to the client.

Return ONLY a JSON object with this shape:
{
  "coreProblem": "client's main problem",
  "projectGoal": "what the client ultimately wants to achieve",
  "tools": ["Tool1", "Tool2"],
  "keyRequirements": ["req1", "req2"],
  "tone": "formal|casual|technical",
  "personalizationHooks": ["hook1", "hook2"],
  "priorities": ["priority1", "priority2"]
}`

const analysisSystemPrompt = `You are a senior technical freelancer preparing a proposal.
Write a technical analysis of the job for the candidate below.
- feasibility: what can be done right away and what needs clarification or access. Be realistic.
- potentialRisks: where the work could go wrong (API limits, data quality, legacy code).
- solutionPlan: concrete technical steps. No generic "I will do this".

Return ONLY a JSON object with this shape:
{
  "feasibility": "text",
  "potentialRisks": "text",
  "solutionPlan": "text"
}`

const outlineSystemPrompt = `You are a strategic proposal consultant.
Plan a freelance proposal that follows this structure:
1. Hook: open with the client's situation, not with "I can".
2. Restated problem: show the problem is understood.
3. Value proposition: what the candidate brings to this job.
4. Experience points: specific past work from the candidate's experience.
5. Plan: how the work will be done.
6. Call to action: one concrete next step or question.

Return ONLY a JSON object with this shape:
{
  "hook": "opening sentence(s)",
  "restatedProblem": "text",
  "valueProposition": "text",
  "experiencePoints": ["point1", "point2"],
  "planPresentation": "text",
  "callToAction": "text",
  "rationale": "why this outline fits the job"
}`

const compositionSystemPrompt = `You are a professional freelancer writing a proposal from an outline.
Follow the outline in this order: hook, restated problem, value proposition with experience, plan, call to action.
- Write simple, human English that reads as natural prose, not a list of sections.
- No greetings like "Hi" at the start and no phrases like "perfect fit", "rockstar" or "ninja".
- Keep it to 2-4 short paragraphs.
- Sign off with the candidate's name taken from the experience, else "[Your Name]".
- Output ONLY the proposal text.`

const scoreSystemPrompt = `Analyze how well the candidate matches the job.
- score is an integer from 0 to 100.
- strengths lists what makes the candidate strong for this job.
- gaps lists what the candidate might be missing.

Return ONLY a JSON object with this shape:
{
  "score": 0,
  "strengths": ["text"],
  "gaps": ["text"]
}`

func buildAnalysisPrompt(extraction *model.JobExtraction, cvText string) string {
	return fmt.Sprintf(`Job analysis:
%s

My experience:
%s

Generate the technical analysis.`, prettyJSON(extraction), cvText)
}

func buildFreshOutlinePrompt(in *OutlineInput, experienceChars int) string {
	return fmt.Sprintf(`Create a strategic outline for a proposal.

Job description:
%s

Extracted info:
- Core problem: %s
- Goal: %s
- Tools: %s
- Priorities: %s
- Details: %s
- Tone: %s

Technical analysis:
- Feasibility: %s
- Risks: %s
- Solution: %s

Experience to reference:
%s`,
		in.JobDescription,
		in.Extraction.CoreProblem,
		in.Extraction.ProjectGoal,
		strings.Join(in.Extraction.Tools, ", "),
		strings.Join(in.Extraction.Priorities, ", "),
		strings.Join(in.Extraction.PersonalizationHooks, ", "),
		in.Extraction.Tone,
		in.Analysis.Feasibility,
		in.Analysis.PotentialRisks,
		in.Analysis.SolutionPlan,
		clip(in.CVText, experienceChars))
}

func buildReviseOutlinePrompt(in *OutlineInput, experienceChars int) string {
	return fmt.Sprintf(`Revise the proposal strategy based on this feedback:
%s

Previous proposal:
%s

Job: %s
Tools: %s
Context:
%s

Experience to reference:
%s

Create a new strategic outline.`,
		in.UserFeedback,
		in.PreviousProposal,
		in.JobDescription,
		strings.Join(in.Extraction.Tools, ", "),
		prettyJSON(in.Analysis),
		clip(in.CVText, experienceChars))
}

func buildCompositionPrompt(in *ComposeInput, experienceChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the proposal based on this outline:\n%s\n\n", prettyJSON(in.Outline))
	fmt.Fprintf(&sb, "Job description:\n%s\n\n", in.JobDescription)
	if in.Extraction != nil {
		fmt.Fprintf(&sb, "Client tone: %s\n\n", in.Extraction.Tone)
	}
	fmt.Fprintf(&sb, "Candidate context (for name and style):\n%s\n", clip(in.CVText, experienceChars))
	if in.StyleReference != "" {
		fmt.Fprintf(&sb, "\nA proposal by the same candidate that won a similar job. Match its voice, do not copy it:\n%s\n", in.StyleReference)
	}
	sb.WriteString("\nMake it flow naturally while keeping the structure.")
	return sb.String()
}

func buildScorePrompt(job string, cvText string) string {
	return fmt.Sprintf("Job: %s\n\nCV: %s", job, cvText)
}

func prettyJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// clip cuts s to at most n runes. n <= 0 keeps s whole.
func clip(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
