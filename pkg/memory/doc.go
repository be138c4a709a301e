// Package memory provides long-term interaction memory backed by a
// Qdrant vector store, with embeddings computed by the local Ollama
// instance. Resolved query/answer pairs are stored after each
// invocation and similar past interactions are retrieved to augment
// new queries.
package memory
