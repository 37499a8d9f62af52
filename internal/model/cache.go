package model

// EmbeddingCache is a persisted embedding keyed by model, task type and
// the sha256 of the embedded text.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}

// IndexBlob is a serialized index generation stored under a logical key.
type IndexBlob struct {
	Key   string `json:"key"`
	Data  []byte `json:"data"`
	Mtime int64  `json:"mtime"`
}
