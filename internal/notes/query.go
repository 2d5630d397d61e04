package notes

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
	likeEscape      = `\`
)

var (
	// ErrInvalidSortOrder indicates an unknown sort key.
	ErrInvalidSortOrder = errors.New("notes: invalid sort order")
	// ErrInvalidPagination indicates a negative page or limit.
	ErrInvalidPagination = errors.New("notes: invalid pagination")
)

// SortOrder selects the ordering of a listing.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortPinned SortOrder = "pinned"
)

// ParseSortOrder maps a raw sort key to a SortOrder; empty input means SortNewest.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortPinned:
		return SortPinned, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortOrder, raw)
	}
}

// ListFilters narrows and orders ListNotes. Nil flag filters do not narrow results.
type ListFilters struct {
	Search    string
	Sort      SortOrder
	Page      int
	Limit     int
	Archived  *bool
	Favourite *bool
}

func (f ListFilters) normalized() (ListFilters, error) {
	if f.Page < 0 || f.Limit < 0 {
		return ListFilters{}, fmt.Errorf("%w: page=%d limit=%d", ErrInvalidPagination, f.Page, f.Limit)
	}
	if f.Page == 0 {
		f.Page = defaultPage
	}
	if f.Limit == 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	sort, err := ParseSortOrder(string(f.Sort))
	if err != nil {
		return ListFilters{}, err
	}
	f.Sort = sort
	return f, nil
}

func (f ListFilters) offset() int {
	return (f.Page - 1) * f.Limit
}

func (f ListFilters) orderClause() string {
	if f.Sort == SortOldest {
		return "created_at ASC, id ASC"
	}
	return "is_pinned DESC, created_at DESC, id DESC"
}

// searchTerms splits free text on whitespace and commas into lower-cased, de-duplicated terms.
func searchTerms(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		term := strings.ToLower(field)
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return replacer.Replace(term)
}

// applySearch ORs every term against the folded search_text column.
// Matching never touches the JSON-encoded tags column.
func applySearch(query *gorm.DB, terms []string) *gorm.DB {
	if len(terms) == 0 {
		return query
	}
	const perTerm = `search_text LIKE ? ESCAPE '\'`
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms))
	for _, term := range terms {
		clauses = append(clauses, perTerm)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	return query.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

func applyFlagFilters(query *gorm.DB, f ListFilters) *gorm.DB {
	if f.Archived != nil {
		query = query.Where("is_archived = ?", *f.Archived)
	}
	if f.Favourite != nil {
		query = query.Where("is_favourite = ?", *f.Favourite)
	}
	return query
}

func totalPages(total int64, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
