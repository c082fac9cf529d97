package catalog

import "github.com/ghcatalog/engine/format"

// epochLastCommit is the packable sentinel used as LastCommit for a
// repository that received no accepted commits: the earliest date-time
// the §3 packed encoding can represent, so Q7's "last-commit precedes D"
// scan still orders such repos correctly (first) without requiring the
// field to carry a separate validity bit on disk.
var epochLastCommit = format.DateTime{Year: 2005, Month: 1, Day: 1}

// Repository is a code-hosting repository, per spec.md §3. LastCommit
// is derived during ingestion (backfilled from the commits stream
// before the repo record is emitted) rather than read from text input.
type Repository struct {
	ID              int32
	OwnerID         int32
	FullName        string
	License         string
	HasWiki         bool
	Description     string
	Language        string
	DefaultBranch   string
	Created         format.DateTime
	Updated         format.DateTime
	Forks           int32
	OpenIssues      int32
	Stargazers      int32
	Size            int32
	LastCommit      format.DateTime
	LastCommitValid bool
}

// RepositoryTextFormat describes the `;`-separated ingestion columns,
// per spec.md §6: id, owner-id, full-name, license, has-wiki,
// description?, language, default-branch, creation-date-time,
// updated-date-time, forks-count, open-issues, stargazers-count, size.
func RepositoryTextFormat() (*format.Format[Repository], error) {
	return format.NewFormat[Repository](';',
		format.Int32Field("id", func(r *Repository) int32 { return r.ID }, func(r *Repository, v int32) { r.ID = v }),
		format.Int32Field("owner_id", func(r *Repository) int32 { return r.OwnerID }, func(r *Repository, v int32) { r.OwnerID = v }),
		format.RawStringField[Repository]("full_name", func(r *Repository) string { return r.FullName }, func(r *Repository, v string) { r.FullName = v }),
		format.RawStringField[Repository]("license", func(r *Repository) string { return r.License }, func(r *Repository, v string) { r.License = v }),
		format.BoolField("has_wiki", func(r *Repository) bool { return r.HasWiki }, func(r *Repository, v bool) { r.HasWiki = v }),
		format.RawStringNullField[Repository]("description", func(r *Repository) string { return r.Description }, func(r *Repository, v string) { r.Description = v }),
		format.RawStringField[Repository]("language", func(r *Repository) string { return r.Language }, func(r *Repository, v string) { r.Language = v }),
		format.RawStringField[Repository]("default_branch", func(r *Repository) string { return r.DefaultBranch }, func(r *Repository, v string) { r.DefaultBranch = v }),
		format.DateTimeField("creation_date_time", func(r *Repository) format.DateTime { return r.Created }, func(r *Repository, v format.DateTime) { r.Created = v }),
		format.DateTimeField("updated_date_time", func(r *Repository) format.DateTime { return r.Updated }, func(r *Repository, v format.DateTime) { r.Updated = v }),
		format.Int32Field("forks", func(r *Repository) int32 { return r.Forks }, func(r *Repository, v int32) { r.Forks = v }),
		format.Int32Field("open_issues", func(r *Repository) int32 { return r.OpenIssues }, func(r *Repository, v int32) { r.OpenIssues = v }),
		format.Int32Field("stargazers", func(r *Repository) int32 { return r.Stargazers }, func(r *Repository, v int32) { r.Stargazers = v }),
		format.Int32Field("size", func(r *Repository) int32 { return r.Size }, func(r *Repository, v int32) { r.Size = v }),
	)
}

// RepositoryBinaryFormat describes the compressed `repos.dat` record
// layout of spec.md §6. The language field comes right after the
// fixed-size id, owner_id and last_commit_date members so that
// repositories-by-language's indirect-key comparator
// can be handed a fixed, easily-computed offset into this file.
func RepositoryBinaryFormat() (*format.Format[Repository], error) {
	return format.NewFormat[Repository](0,
		format.Int32Field("id", func(r *Repository) int32 { return r.ID }, func(r *Repository, v int32) { r.ID = v }),
		format.Int32Field("owner_id", func(r *Repository) int32 { return r.OwnerID }, func(r *Repository, v int32) { r.OwnerID = v }),
		format.DateTimeField("last_commit_date", func(r *Repository) format.DateTime { return r.LastCommit }, func(r *Repository, v format.DateTime) { r.LastCommit = v }),
		format.LengthField[Repository]("language_len", func(r *Repository) int { return len(r.Language) }),
		format.StringField[Repository]("language", 3, func(r *Repository) string { return r.Language }, func(r *Repository, v string) { r.Language = v }),
		format.LengthField[Repository]("description_len", func(r *Repository) int { return len(r.Description) }),
		format.StringNullField[Repository]("description", 5, func(r *Repository) string { return r.Description }, func(r *Repository, v string) { r.Description = v }),
		format.BoolField("has_wiki", func(r *Repository) bool { return r.HasWiki }, func(r *Repository, v bool) { r.HasWiki = v }),
		format.LengthField[Repository]("default_branch_len", func(r *Repository) int { return len(r.DefaultBranch) }),
		format.StringField[Repository]("default_branch", 8, func(r *Repository) string { return r.DefaultBranch }, func(r *Repository, v string) { r.DefaultBranch = v }),
		format.DateTimeField("created", func(r *Repository) format.DateTime { return r.Created }, func(r *Repository, v format.DateTime) { r.Created = v }),
		format.DateTimeField("updated", func(r *Repository) format.DateTime { return r.Updated }, func(r *Repository, v format.DateTime) { r.Updated = v }),
		format.Int32Field("forks", func(r *Repository) int32 { return r.Forks }, func(r *Repository, v int32) { r.Forks = v }),
		format.Int32Field("open_issues", func(r *Repository) int32 { return r.OpenIssues }, func(r *Repository, v int32) { r.OpenIssues = v }),
		format.Int32Field("stargazers", func(r *Repository) int32 { return r.Stargazers }, func(r *Repository, v int32) { r.Stargazers = v }),
		format.Int32Field("size", func(r *Repository) int32 { return r.Size }, func(r *Repository, v int32) { r.Size = v }),
		format.LengthField[Repository]("full_name_len", func(r *Repository) int { return len(r.FullName) }),
		format.StringField[Repository]("full_name", 16, func(r *Repository) string { return r.FullName }, func(r *Repository, v string) { r.FullName = v }),
		format.LengthField[Repository]("license_len", func(r *Repository) int { return len(r.License) }),
		format.StringField[Repository]("license", 18, func(r *Repository) string { return r.License }, func(r *Repository, v string) { r.License = v }),
	)
}

// RepositoryFieldIndex names the positional index of each Repository
// binary member, for lazy.View.Get calls in the builder and queries.
const (
	RepositoryFieldID = iota
	RepositoryFieldOwnerID
	RepositoryFieldLastCommitDate
	RepositoryFieldLanguageLen
	RepositoryFieldLanguage
	RepositoryFieldDescriptionLen
	RepositoryFieldDescription
	RepositoryFieldHasWiki
	RepositoryFieldDefaultBranchLen
	RepositoryFieldDefaultBranch
	RepositoryFieldCreated
	RepositoryFieldUpdated
	RepositoryFieldForks
	RepositoryFieldOpenIssues
	RepositoryFieldStargazers
	RepositoryFieldSize
	RepositoryFieldFullNameLen
	RepositoryFieldFullName
	RepositoryFieldLicenseLen
	RepositoryFieldLicense
)

// languageFieldOffset is the byte offset of the language_len prefix
// within one repository's binary record, constant across records
// because every preceding member (id, owner_id, last_commit_date) is
// fixed-size. The repositories-by-language index's indirect key is
// recordOffset + languageFieldOffset.
const languageFieldOffset = 4 + 4 + 4
