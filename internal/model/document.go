package model

// Document is one normalized item produced by a source adapter.
type Document struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Chunk is a bounded span of a document's text. SequenceIndex orders the
// chunks of one document; DocumentOrder is the document's position in the
// cycle that produced it.
type Chunk struct {
	Text          string `json:"text"`
	Source        string `json:"source"`
	SequenceIndex int    `json:"sequence_index"`
	DocumentOrder int    `json:"document_order"`
}
