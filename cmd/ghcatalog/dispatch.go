package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ghcatalog/engine/catalog"
	"github.com/ghcatalog/engine/format"
	"github.com/ghcatalog/engine/query"
)

// runQueryLine dispatches one query-list line to the matching Q1-Q10
// primitive and renders its result as plain text. A line is the query
// name followed by space-separated arguments, e.g.:
//
//	Q5 2 2020-01-01 2020-12-31
//	Q6 3 go
//	Q9 5
//
// Rendering here is deliberately plain (one row per line, `;`-joined
// fields) rather than a polished report: spec.md's own Non-goals name
// "the query printers" and "output file naming" as out of scope, so
// this is just enough to make the ten primitives runnable from the
// command line.
func runQueryLine(cat *catalog.Catalog, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.New("ghcatalog: empty query line")
	}
	name, args := strings.ToUpper(fields[0]), fields[1:]

	switch name {
	case "Q1":
		kc := query.Q1(cat)
		return fmt.Sprintf("Bot: %d\nOrganization: %d\nUser: %d\n", kc.Bot, kc.Organization, kc.User), nil
	case "Q2":
		return fmt.Sprintf("%.2f\n", query.Q2(cat)), nil
	case "Q3":
		return fmt.Sprintf("%d\n", query.Q3(cat)), nil
	case "Q4":
		return fmt.Sprintf("%.2f\n", query.Q4(cat)), nil
	case "Q5":
		n, start, end, err := parseNDateRange(args)
		if err != nil {
			return "", err
		}
		rows, err := query.Q5(cat, n, start, end)
		if err != nil {
			return "", err
		}
		return renderAccountCounts(rows), nil
	case "Q6":
		n, language, err := parseNString(args)
		if err != nil {
			return "", err
		}
		rows, err := query.Q6(cat, n, language)
		if err != nil {
			return "", err
		}
		return renderAccountCounts(rows), nil
	case "Q7":
		before, err := parseSingleDate(args)
		if err != nil {
			return "", err
		}
		rows, err := query.Q7(cat, before)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, r := range rows {
			fmt.Fprintf(&sb, "%d;%s\n", r.ID, r.Description)
		}
		return sb.String(), nil
	case "Q8":
		n, since, err := parseNDate(args)
		if err != nil {
			return "", err
		}
		langs, err := query.Q8(cat, n, since)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, l := range langs {
			sb.WriteString(l)
			sb.WriteByte('\n')
		}
		return sb.String(), nil
	case "Q9":
		n, err := parseN(args)
		if err != nil {
			return "", err
		}
		rows, err := query.Q9(cat, n)
		if err != nil {
			return "", err
		}
		return renderAccountCounts(rows), nil
	case "Q10":
		n, err := parseN(args)
		if err != nil {
			return "", err
		}
		rows, err := query.Q10(cat, n)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, r := range rows {
			fmt.Fprintf(&sb, "%d;%s;%d;%d\n", r.AccountID, r.Login, r.MaxLength, r.RepoID)
		}
		return sb.String(), nil
	default:
		return "", errors.Errorf("ghcatalog: unknown query %q", fields[0])
	}
}

func renderAccountCounts(rows []query.AccountCount) string {
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%d;%s;%d\n", r.ID, r.Login, r.Count)
	}
	return sb.String()
}

func parseN(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("ghcatalog: expected: N")
	}
	return strconv.Atoi(args[0])
}

func parseNString(args []string) (int, string, error) {
	if len(args) != 2 {
		return 0, "", errors.New("ghcatalog: expected: N VALUE")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, "", err
	}
	return n, args[1], nil
}

func parseNDate(args []string) (int, format.DateTime, error) {
	if len(args) != 2 {
		return 0, format.DateTime{}, errors.New("ghcatalog: expected: N DATE")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, format.DateTime{}, err
	}
	d, err := format.ParseDate(args[1])
	if err != nil {
		return 0, format.DateTime{}, err
	}
	return n, d, nil
}

func parseNDateRange(args []string) (int, format.DateTime, format.DateTime, error) {
	if len(args) != 3 {
		return 0, format.DateTime{}, format.DateTime{}, errors.New("ghcatalog: expected: N START END")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, format.DateTime{}, format.DateTime{}, err
	}
	start, err := format.ParseDate(args[1])
	if err != nil {
		return 0, format.DateTime{}, format.DateTime{}, err
	}
	end, err := format.ParseDate(args[2])
	if err != nil {
		return 0, format.DateTime{}, format.DateTime{}, err
	}
	return n, start, end, nil
}

func parseSingleDate(args []string) (format.DateTime, error) {
	if len(args) != 1 {
		return format.DateTime{}, errors.New("ghcatalog: expected: DATE")
	}
	return format.ParseDate(args[0])
}
