package parser

// Layout names the markup variant a field was resolved from.
type Layout string

const (
	LayoutPoly    Layout = "poly"
	LayoutClassic Layout = "classic"
	LayoutNone    Layout = ""
)

// TitleSelector locates the title element of one layout.
type TitleSelector struct {
	Layout   Layout
	Selector string
}

// PriceSelector locates the price fraction of one layout. When Container is
// set, the fraction is only looked up inside the first matching container and
// the selector applies only if that container exists.
type PriceSelector struct {
	Layout    Layout
	Container string
	Fraction  string
}

// Selectors groups the CSS selectors used to read a results page. Title and
// Price entries are tried in order; the first one that applies wins.
type Selectors struct {
	Item  string
	Title []TitleSelector
	Price []PriceSelector
}

// DefaultSelectors returns the selectors for the MercadoLibre results page.
func DefaultSelectors() Selectors {
	return Selectors{
		Item: "li.ui-search-layout__item",
		Title: []TitleSelector{
			{Layout: LayoutPoly, Selector: "a.poly-component__title"},
			{Layout: LayoutClassic, Selector: "h2.ui-search-item__title"},
		},
		Price: []PriceSelector{
			{Layout: LayoutPoly, Container: "div.poly-price__current", Fraction: "span.andes-money-amount__fraction"},
			{Layout: LayoutClassic, Fraction: "span.andes-money-amount__fraction"},
		},
	}
}
