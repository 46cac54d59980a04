package model

type IngestStatus string

const (
	IngestStatusPending    IngestStatus = "PENDING"
	IngestStatusProcessing IngestStatus = "PROCESSING"
	IngestStatusIndexing   IngestStatus = "INDEXING"
	IngestStatusIndexed    IngestStatus = "INDEXED"
	IngestStatusError      IngestStatus = "ERROR"
)

// Terminal reports whether a file can leave this status again.
func (s IngestStatus) Terminal() bool {
	return s == IngestStatusIndexed || s == IngestStatusError
}

type File struct {
	ID              string       `json:"id" db:"id"`
	Name            string       `json:"name" db:"name"`
	MimeType        string       `json:"mime_type" db:"mime_type"`
	StoreKey        string       `json:"store_key" db:"store_key"`
	KnowledgeBaseID string       `json:"knowledge_base_id" db:"knowledge_base_id"`
	Status          IngestStatus `json:"status" db:"status"`
	Ctime           int64        `json:"ctime" db:"ctime"`
	Mtime           int64        `json:"mtime" db:"mtime"`
}
