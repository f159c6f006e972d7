// Package storage manages per-item artifact directories.
//
// A Manager owns one directory whose files are named <item_id><ext>. It
// keeps an in-memory index of stored items, seeded by scanning the directory
// on creation, and writes every artifact through a temporary file followed by
// a rename so a crash never leaves a truncated artifact under its final name.
//
//	transcripts, err := storage.NewManager(layout.ChatDir(entityID), ".json")
//	if err != nil {
//	    return err
//	}
//	if !transcripts.IsStored(clipID) {
//	    err = transcripts.SaveBytes(payload, clipID)
//	}
package storage
