package catalog

import "github.com/ghcatalog/engine/format"

// Commit is a single commit event, per spec.md §3. AuthorIsFriend and
// CommitterIsFriend start false and are backfilled by the friend-flag
// pass (catalog.Builder.computeFriendFlagsAndAggregates) once accounts and repos are
// fully ingested.
type Commit struct {
	RepoID            int32
	AuthorID          int32
	AuthorIsFriend    bool
	CommitterID       int32
	CommitterIsFriend bool
	CommitDate        format.DateTime
	Message           string
}

// CommitTextFormat describes the `;`-separated ingestion columns, per
// spec.md §6: repo-id, author-id, committer-id, commit-date-time,
// message?.
func CommitTextFormat() (*format.Format[Commit], error) {
	return format.NewFormat[Commit](';',
		format.Int32Field("repo_id", func(c *Commit) int32 { return c.RepoID }, func(c *Commit, v int32) { c.RepoID = v }),
		format.Int32Field("author_id", func(c *Commit) int32 { return c.AuthorID }, func(c *Commit, v int32) { c.AuthorID = v }),
		format.Int32Field("committer_id", func(c *Commit) int32 { return c.CommitterID }, func(c *Commit, v int32) { c.CommitterID = v }),
		format.DateTimeField("commit_date_time", func(c *Commit) format.DateTime { return c.CommitDate }, func(c *Commit, v format.DateTime) { c.CommitDate = v }),
		format.RawStringNullField[Commit]("message", func(c *Commit) string { return c.Message }, func(c *Commit, v string) { c.Message = v }),
	)
}

// CommitBinaryFormat describes the compressed `commits.dat` record
// layout of spec.md §6: int32 repo_id, int32 author_id, byte
// author_is_friend, int32 committer_id, byte committer_is_friend,
// int32 packed_commit_date, int32 message_len, byte[message_len]
// message.
func CommitBinaryFormat() (*format.Format[Commit], error) {
	return format.NewFormat[Commit](0,
		format.Int32Field("repo_id", func(c *Commit) int32 { return c.RepoID }, func(c *Commit, v int32) { c.RepoID = v }),
		format.Int32Field("author_id", func(c *Commit) int32 { return c.AuthorID }, func(c *Commit, v int32) { c.AuthorID = v }),
		format.BoolField("author_is_friend", func(c *Commit) bool { return c.AuthorIsFriend }, func(c *Commit, v bool) { c.AuthorIsFriend = v }),
		format.Int32Field("committer_id", func(c *Commit) int32 { return c.CommitterID }, func(c *Commit, v int32) { c.CommitterID = v }),
		format.BoolField("committer_is_friend", func(c *Commit) bool { return c.CommitterIsFriend }, func(c *Commit, v bool) { c.CommitterIsFriend = v }),
		format.DateTimeField("commit_date", func(c *Commit) format.DateTime { return c.CommitDate }, func(c *Commit, v format.DateTime) { c.CommitDate = v }),
		format.LengthField[Commit]("message_len", func(c *Commit) int { return len(c.Message) }),
		format.StringNullField[Commit]("message", 6, func(c *Commit) string { return c.Message }, func(c *Commit, v string) { c.Message = v }),
	)
}

// commitFieldIndex names the positional index of each Commit binary
// member, for lazy.View.Get/Mutate calls in the builder and queries.
const (
	CommitFieldRepoID = iota
	CommitFieldAuthorID
	CommitFieldAuthorIsFriend
	CommitFieldCommitterID
	CommitFieldCommitterIsFriend
	CommitFieldCommitDate
	CommitFieldMessageLen
	CommitFieldMessage
)
