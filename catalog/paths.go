package catalog

import "path/filepath"

// fileNames centralizes the persistent file names of spec.md §6 so the
// builder and the loader agree on them without repeating string
// literals at each call site.
type fileNames struct {
	users           string
	repos           string
	commits         string
	staticQueries   string
	buildMarker     string
	accountsByID    string
	reposByID       string
	commitsByRepo   string
	commitsByRepoV  string
	commitsByDate   string
	collaborators   string
	collaboratorsV  string
	reposByLastCom  string
	reposByLanguage string
	reposByLangV    string
}

func newFileNames(saidaDir string) fileNames {
	p := func(name string) string { return filepath.Join(saidaDir, name) }
	return fileNames{
		users:           p("users.dat"),
		repos:           p("repos.dat"),
		commits:         p("commits.dat"),
		staticQueries:   p("staticQueries.dat"),
		buildMarker:     p(".build-id"),
		accountsByID:    p("accounts_by_id.indx"),
		reposByID:       p("repos_by_id.indx"),
		commitsByRepo:   p("commits_by_repo.indx"),
		commitsByRepoV:  p("commits_by_repo.dat"),
		commitsByDate:   p("commits_by_date.indx"),
		collaborators:   p("collaborators.indx"),
		collaboratorsV:  p("collaborators.dat"),
		reposByLastCom:  p("repos_by_last_commit.indx"),
		reposByLanguage: p("repos_by_language.indx"),
		reposByLangV:    p("repos_by_language.dat"),
	}
}
