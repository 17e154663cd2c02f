package categorization

import (
	"strings"

	"github.com/google/uuid"
)

// Rule maps a keyword found in a bank description to a merchant and category.
type Rule struct {
	ID         uuid.UUID
	AccountID  *uuid.UUID // nil for built-in rules
	Pattern    string     // keyword, SQL LIKE wildcards are ignored
	CleanName  string
	Category   string
	CategoryID *uuid.UUID
	Priority   int
}

// IsSystem reports whether the rule is built in rather than account specific.
func (r Rule) IsSystem() bool {
	return r.AccountID == nil
}

// CategoryIDFor derives a stable category id from a category name, so that
// built-in categories and raw category cells map to the same id everywhere.
func CategoryIDFor(name string) uuid.UUID {
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("category:"+key))
}

// categoryID returns the rule's explicit category id or one derived from its name.
func (r Rule) categoryID() *uuid.UUID {
	if r.CategoryID != nil {
		return r.CategoryID
	}
	if strings.TrimSpace(r.Category) == "" {
		return nil
	}
	id := CategoryIDFor(r.Category)
	return &id
}

type brand struct {
	keywords []string
	name     string
	category string
}

// brands are common merchants in Portuguese, EU and US statements.
var brands = []brand{
	// Supermarkets
	{[]string{"PINGO DOCE", "PGO DOCE"}, "Pingo Doce", "Groceries"},
	{[]string{"CONTINENTE"}, "Continente", "Groceries"},
	{[]string{"LIDL"}, "Lidl", "Groceries"},
	{[]string{"ALDI"}, "Aldi", "Groceries"},
	{[]string{"MERCADONA"}, "Mercadona", "Groceries"},
	{[]string{"MINIPRECO", "MINI PRECO"}, "Minipreço", "Groceries"},
	{[]string{"INTERMARCHE"}, "Intermarché", "Groceries"},
	{[]string{"WHOLE FOODS"}, "Whole Foods", "Groceries"},
	{[]string{"TESCO"}, "Tesco", "Groceries"},

	// Coffee and restaurants
	{[]string{"STARBUCKS"}, "Starbucks", "Food & Drink"},
	{[]string{"MCDONALD", "MC DONALDS"}, "McDonald's", "Food & Drink"},
	{[]string{"BURGER KING"}, "Burger King", "Food & Drink"},
	{[]string{"PIZZA HUT"}, "Pizza Hut", "Food & Drink"},
	{[]string{"UBER EATS", "UBEREATS"}, "Uber Eats", "Food & Drink"},
	{[]string{"GLOVO"}, "Glovo", "Food & Drink"},
	{[]string{"BOLT FOOD"}, "Bolt Food", "Food & Drink"},

	// Transport
	{[]string{"UBER"}, "Uber", "Transport"},
	{[]string{"BOLT"}, "Bolt", "Transport"},
	{[]string{"FREE NOW", "FREENOW"}, "Free Now", "Transport"},
	{[]string{"VIVA VIAGEM"}, "Viva Viagem", "Transport"},
	{[]string{"COMBOIOS"}, "CP", "Transport"},
	{[]string{"RYANAIR"}, "Ryanair", "Transport"},
	{[]string{"TAP AIR", "TAP PORTUGAL"}, "TAP", "Transport"},
	{[]string{"SHELL"}, "Shell", "Transport"},

	// Utilities
	{[]string{"EPAL"}, "EPAL", "Utilities"},
	{[]string{"GALP"}, "Galp", "Utilities"},
	{[]string{"ALTICE"}, "MEO", "Utilities"},
	{[]string{"VODAFONE"}, "Vodafone", "Utilities"},

	// Shopping
	{[]string{"AMAZON", "AMZN"}, "Amazon", "Shopping"},
	{[]string{"ZARA"}, "Zara", "Shopping"},
	{[]string{"PRIMARK"}, "Primark", "Shopping"},
	{[]string{"IKEA"}, "IKEA", "Shopping"},
	{[]string{"WORTEN"}, "Worten", "Shopping"},
	{[]string{"FNAC"}, "FNAC", "Shopping"},

	// Entertainment
	{[]string{"NETFLIX"}, "Netflix", "Entertainment"},
	{[]string{"SPOTIFY"}, "Spotify", "Entertainment"},
	{[]string{"DISNEY PLUS", "DISNEYPLUS"}, "Disney+", "Entertainment"},
	{[]string{"APPLE.COM", "APPLE MUSIC"}, "Apple", "Entertainment"},
	{[]string{"PLAYSTATION"}, "PlayStation", "Entertainment"},
	{[]string{"STEAM"}, "Steam", "Entertainment"},

	// Health
	{[]string{"FARMACIA", "PHARMACY"}, "Farmácia", "Health"},

	// Finance
	{[]string{"CAIXA GERAL"}, "CGD", "Finance"},
	{[]string{"MILLENNIUM"}, "Millennium BCP", "Finance"},
	{[]string{"SANTANDER"}, "Santander", "Finance"},
	{[]string{"NOVO BANCO"}, "Novo Banco", "Finance"},
	{[]string{"REVOLUT"}, "Revolut", "Finance"},
	{[]string{"PAYPAL"}, "PayPal", "Finance"},
}

// DefaultRules returns the built-in keyword rules.
// Longer keywords get a higher priority so "UBER EATS" wins over "UBER".
func DefaultRules() []Rule {
	var rules []Rule
	for _, b := range brands {
		for _, kw := range b.keywords {
			rules = append(rules, Rule{
				ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("rule:"+kw)),
				Pattern:   kw,
				CleanName: b.name,
				Category:  b.category,
				Priority:  len(kw),
			})
		}
	}
	return rules
}
