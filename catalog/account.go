package catalog

import (
	"sort"

	"github.com/ghcatalog/engine/format"
)

// Kind is an account's role on the platform, the closed vocabulary
// described in spec.md §3.
type Kind uint8

const (
	KindUser Kind = iota
	KindOrganization
	KindBot
)

var kindValues = []string{"User", "Organization", "Bot"}

// String renders k in its text form.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindValues) {
		return ""
	}
	return kindValues[k]
}

// Account is a platform identity. Followers and Following are populated
// only during ingestion, to compute Friends, and are never persisted
// in the compressed encoding (spec.md §3: "MAY be dropped from the
// binary encoding").
type Account struct {
	ID        int32
	Login     string
	Kind      Kind
	Followers []int32
	Following []int32
	Friends   []int32

	// Raw ingestion tokens for columns that carry no binary form. Kept
	// only so the text codec round-trips; no query reads these.
	creationDateTimeText string
	publicGistsText      string
	publicReposText      string
}

// AccountTextFormat describes the `;`-separated ingestion columns for
// accounts, per spec.md §6: id, login, kind, creation-date-time,
// followers-count, followers-list, following-count, following-list,
// public-gists, public-repos.
func AccountTextFormat() (*format.Format[Account], error) {
	return format.NewFormat[Account](';',
		format.Int32Field("id", func(a *Account) int32 { return a.ID }, func(a *Account, v int32) { a.ID = v }),
		format.RawStringField[Account]("login", func(a *Account) string { return a.Login }, func(a *Account, v string) { a.Login = v }),
		format.EnumField[Account, Kind]("kind", kindValues, func(a *Account) Kind { return a.Kind }, func(a *Account, v Kind) { a.Kind = v }),
		format.SkipDateTimeField[Account]("creation_date_time",
			func(a *Account) string { return a.creationDateTimeText },
			func(a *Account, v string) { a.creationDateTimeText = v }),
		format.LengthField[Account]("followers_count", func(a *Account) int { return len(a.Followers) }),
		intListNoBinary("followers_list", 4, func(a *Account) []int32 { return a.Followers }, func(a *Account, v []int32) { a.Followers = v }),
		format.LengthField[Account]("following_count", func(a *Account) int { return len(a.Following) }),
		intListNoBinary("following_list", 6, func(a *Account) []int32 { return a.Following }, func(a *Account, v []int32) { a.Following = v }),
		format.SkipField[Account]("public_gists",
			func(a *Account) string { return a.publicGistsText },
			func(a *Account, v string) { a.publicGistsText = v }),
		format.SkipField[Account]("public_repos",
			func(a *Account) string { return a.publicReposText },
			func(a *Account, v string) { a.publicReposText = v }),
	)
}

func intListNoBinary[T any](name string, lengthIdx int, get func(*T) []int32, set func(*T, []int32)) format.Field[T] {
	fld := format.Int32ListField(name, lengthIdx, get, set)
	fld.NoBinary = true
	return fld
}

// AccountBinaryFormat describes the compressed `users.dat` record
// layout of spec.md §6: int32 id, int32 login_len, byte kind, int32
// friends_count, int32[friends_count] friends, byte[login_len] login.
func AccountBinaryFormat() (*format.Format[Account], error) {
	return format.NewFormat[Account](0,
		format.Int32Field("id", func(a *Account) int32 { return a.ID }, func(a *Account, v int32) { a.ID = v }),
		format.LengthField[Account]("login_len", func(a *Account) int { return len(a.Login) }),
		format.EnumField[Account, Kind]("kind", kindValues, func(a *Account) Kind { return a.Kind }, func(a *Account, v Kind) { a.Kind = v }),
		format.LengthField[Account]("friends_count", func(a *Account) int { return len(a.Friends) }),
		format.Int32ListField("friends", 3, func(a *Account) []int32 { return a.Friends }, func(a *Account, v []int32) { a.Friends = v }),
		format.StringField[Account]("login", 1, func(a *Account) string { return a.Login }, func(a *Account, v string) { a.Login = v }),
	)
}

// AccountFieldIndex names the positional index of each Account binary
// member, for lazy.View.Get calls in the builder and queries.
const (
	AccountFieldID = iota
	AccountFieldLoginLen
	AccountFieldKind
	AccountFieldFriendsCount
	AccountFieldFriends
	AccountFieldLogin
)

// ComputeFriends sets Friends to the sorted intersection of Followers
// and Following, per spec.md §3's friends-list invariant.
func (a *Account) ComputeFriends() {
	following := make(map[int32]bool, len(a.Following))
	for _, id := range a.Following {
		following[id] = true
	}
	var friends []int32
	for _, id := range a.Followers {
		if following[id] {
			friends = append(friends, id)
		}
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i] < friends[j] })
	friends = dedupSortedInt32(friends)
	a.Friends = friends
}

func dedupSortedInt32(s []int32) []int32 {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// IsFriend reports whether candidate appears in a's friends list via
// binary search, per spec.md §3's sorted-ascending invariant.
func (a *Account) IsFriend(candidate int32) bool {
	i := sort.Search(len(a.Friends), func(i int) bool { return a.Friends[i] >= candidate })
	return i < len(a.Friends) && a.Friends[i] == candidate
}
