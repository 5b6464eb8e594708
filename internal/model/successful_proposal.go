package model

type SuccessfulProposal struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	JobDescription string    `json:"job_description"`
	ProposalText   string    `json:"proposal_text"`
	Notes          string    `json:"notes,omitempty"`
	Embedding      []float32 `json:"-"`
	Ctime          int64     `json:"ctime"`
}

type SuccessfulProposalMatch struct {
	SuccessfulProposal
	Distance float64 `json:"distance"`
}
