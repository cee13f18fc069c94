// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestionTask asks a worker to extract, chunk, embed and index one uploaded document.
type IngestionTask struct {
	DocumentID string `json:"document_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
}
