package utils

// PlanChunks splits size bytes into parts contiguous ranges. Every part gets
// floor(size/parts) bytes and the last one also takes the remainder, so when
// size < parts the leading parts are empty and the last covers the file.
func PlanChunks(size int64, parts int) []DownloadChunk {
	if parts < 1 {
		parts = 1
	}
	chunkSize := size / int64(parts)
	chunks := make([]DownloadChunk, 0, parts)
	var currentPosition int64
	for i := range parts {
		startByte := currentPosition
		endByte := startByte + chunkSize - 1
		if i == parts-1 {
			endByte = size - 1
		}
		chunks = append(chunks, DownloadChunk{ID: i, StartByte: startByte, EndByte: endByte})
		currentPosition = endByte + 1
	}
	return chunks
}
