package model

// Profile is the single CV record kept per owner.
type Profile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CVText     string    `json:"cv_text"`
	Embedding  []float32 `json:"-"`
	EmbedModel string    `json:"embed_model"`
	SourceFile string    `json:"source_file,omitempty"`
	Ctime      int64     `json:"ctime"`
	Mtime      int64     `json:"mtime"`
}
