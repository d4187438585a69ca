// Package memory assembles the context a participant consults before it
// acts, and records messages so they can be recalled later.
//
// Recorder embeds each message body and appends it to the store. Assembler
// reads it back two ways: a chronological history window of one channel or
// direct pairing, and excerpts ranked by similarity to a query, excluding
// anything already in the window.
//
//	bundle, err := assembler.Assemble(ctx, memory.Request{
//	    Scope:         store.ChannelScope("general"),
//	    QueryText:     "who owns the billing migration?",
//	    HistoryLimit:  25,
//	    RelevantLimit: 25,
//	})
package memory
