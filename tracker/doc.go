// Package tracker follows work that waits on other participants.
//
// ReplyTracker holds one entry per tracking id: the set of identities still
// expected to answer, the replies collected so far, and an optional
// completion callback. Each Resolve removes one identity; the call that
// empties the set deletes the entry, then runs the callback.
//
//	replies := tracker.NewReplyTracker[string]()
//	replies.Start(msgID, []string{"bob", "carol"}, onDone)
//	replies.ResolveWith(ctx, msgID, "bob", "looks good")   // Pending
//	replies.ResolveWith(ctx, msgID, "carol", "ship it")    // Completed
//
// Tree records parent/child branches of work. A branch can complete only
// once all of its children have, and completing a child never completes its
// parent: callers walk up the tree themselves.
//
// Callbacks run after bookkeeping is updated. An error or panic from a
// callback is logged and reported to the observer; it never reaches the
// caller of Resolve or Complete.
package tracker
