package chunker

// Chunk is a bounded text segment derived from one source file, tagged with
// provenance metadata. Every chunk belongs to exactly one
// (collection_name, owner_id) pair.
type Chunk struct {
	// Content is the chunk text.
	Content string

	// SourcePath is the file path relative to the working tree, slash
	// separated, preserved exactly for citation.
	SourcePath string

	// FileName is the base name of the source file.
	FileName string

	// CollectionName is the derived repository name the chunk belongs to.
	CollectionName string

	// OwnerID is the tenant that indexed the repository.
	OwnerID string
}
