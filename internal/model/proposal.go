package model

type Tone string

const (
	ToneFormal    Tone = "formal"
	ToneCasual    Tone = "casual"
	ToneTechnical Tone = "technical"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneFormal, ToneCasual, ToneTechnical:
		return true
	}
	return false
}

// JobExtraction is the fixed set of facts pulled out of a job posting.
type JobExtraction struct {
	CoreProblem          string   `json:"coreProblem"`
	ProjectGoal          string   `json:"projectGoal"`
	Tools                []string `json:"tools"`
	KeyRequirements      []string `json:"keyRequirements"`
	Tone                 Tone     `json:"tone"`
	PersonalizationHooks []string `json:"personalizationHooks"`
	Priorities           []string `json:"priorities"`
}

type TechnicalAnalysis struct {
	Feasibility    string `json:"feasibility"`
	PotentialRisks string `json:"potentialRisks"`
	SolutionPlan   string `json:"solutionPlan"`
}

type ProposalOutline struct {
	Hook             string   `json:"hook"`
	RestatedProblem  string   `json:"restatedProblem"`
	ValueProposition string   `json:"valueProposition"`
	ExperiencePoints []string `json:"experiencePoints"`
	PlanPresentation string   `json:"planPresentation"`
	CallToAction     string   `json:"callToAction"`
	Rationale        string   `json:"rationale"`
}

type MatchScore struct {
	Score     int      `json:"score"`
	Strengths []string `json:"strengths"`
	Gaps      []string `json:"gaps"`
}

// ProposalContext is handed back to the client after a generation so a
// later regenerate call can send it again. It is never stored server side.
type ProposalContext struct {
	JobExtraction     *JobExtraction     `json:"jobExtraction"`
	TechnicalAnalysis *TechnicalAnalysis `json:"technicalAnalysis"`
}
