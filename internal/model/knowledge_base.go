package model

// KnowledgeBase maps 1:1 to one vector collection. EmbeddingModel and
// VectorSize are fixed at creation; changing either would orphan every
// vector already indexed for it.
type KnowledgeBase struct {
	ID             string `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	Description    string `json:"description" db:"description"`
	EmbeddingModel string `json:"embedding_model" db:"embedding_model"`
	VectorSize     int    `json:"vector_size" db:"vector_size"`
	Ctime          int64  `json:"ctime" db:"ctime"`
}

// CollectionName is the deterministic name of the knowledge base's vector
// collection.
func (kb *KnowledgeBase) CollectionName() string {
	return "knowledge_base_" + kb.ID
}
