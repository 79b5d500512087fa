package crawler

import (
	"net/url"
	"strconv"
	"strings"
)

// SearchParams holds the fixed parameters of the repository's search endpoint.
type SearchParams struct {
	BaseURL  string `mapstructure:"base_url"`
	Option   string `mapstructure:"option"`
	FileID   string `mapstructure:"file_id"`
	ItemID   string `mapstructure:"item_id"`
	Lang     string `mapstructure:"lang"`
	Group    string `mapstructure:"group"`
	Field    string `mapstructure:"field"`
	Operator string `mapstructure:"operator"`
}

// DefaultSearchParams targets the USP theses and dissertations catalogue.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		BaseURL:  "https://www.teses.usp.br/index.php",
		Option:   "com_jumi",
		FileID:   "19",
		ItemID:   "87",
		Lang:     "pt-br",
		Group:    "1",
		Field:    "p",
		Operator: "AND",
	}
}

// QueryBuilder renders listing-page URLs for a keyword.
type QueryBuilder struct {
	params SearchParams
}

// NewQueryBuilder returns a QueryBuilder for params.
func NewQueryBuilder(params SearchParams) *QueryBuilder {
	return &QueryBuilder{params: params}
}

// ListingURL returns the search URL for keyword at the 1-based page.
// Parameters keep the endpoint's order and spaces encode as %20.
func (b *QueryBuilder) ListingURL(keyword string, page int) string {
	pairs := [][2]string{
		{"option", b.params.Option},
		{"fileid", b.params.FileID},
		{"Itemid", b.params.ItemID},
		{"lang", b.params.Lang},
		{"g", b.params.Group},
		{"b0", keyword},
		{"c0", b.params.Field},
		{"o0", b.params.Operator},
		{"pagina", strconv.Itoa(page)},
	}

	var sb strings.Builder
	sb.WriteString(b.params.BaseURL)
	sb.WriteByte('?')
	for i, kv := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(kv[0])
		sb.WriteByte('=')
		sb.WriteString(escapeQueryValue(kv[1]))
	}
	return sb.String()
}

// escapeQueryValue percent-encodes v with %20 for spaces. QueryEscape turns a
// literal '+' into %2B, so the remaining '+' signs are all spaces.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
